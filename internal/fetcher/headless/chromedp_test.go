package headless

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/verifier"
)

func TestClassifyNavigate(t *testing.T) {
	t.Parallel()

	live := context.Background()
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	canceled, cancelParent := context.WithCancel(context.Background())
	cancelParent()

	require.NoError(t, classifyNavigate(nil, live, live))
	assert.ErrorIs(t, classifyNavigate(errors.New("ctx"), live, expired), verifier.ErrNavigationTimeout)
	assert.ErrorIs(t, classifyNavigate(context.DeadlineExceeded, live, live), verifier.ErrNavigationTimeout)
	assert.ErrorIs(t, classifyNavigate(errors.New("Cannot navigate to invalid URL (-32000)"), live, live), verifier.ErrInvalidURL)
	assert.ErrorIs(t, classifyNavigate(errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), live, live), verifier.ErrTransport)
	assert.ErrorIs(t, classifyNavigate(errors.New("anything"), canceled, canceled), context.Canceled)
}

func TestClassifyWait(t *testing.T) {
	t.Parallel()

	live := context.Background()
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	assert.ErrorIs(t, classifyWait(errors.New("x"), live, expired), verifier.ErrWaitTimeout)
	assert.ErrorIs(t, classifyWait(errors.New("websocket closed"), live, live), verifier.ErrTransport)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to propagate")
	}
}

func TestForwardCancelStop(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	cancelParent()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, child.Err(), "stopped forwarder must not cancel the child")

	assert.NotPanics(t, func() { forwardCancel(nil, cancelChild)() })
}

func TestClosedRendererRejectsWork(t *testing.T) {
	t.Parallel()

	r := &Renderer{closed: true}
	err := r.Navigate(context.Background(), "http://example.com", time.Second)
	require.ErrorIs(t, err, ErrRendererClosed)
	_, err = r.WaitReady(context.Background(), time.Second, 0)
	require.ErrorIs(t, err, ErrRendererClosed)

	var nilRenderer *Renderer
	assert.NoError(t, nilRenderer.Close())
}

func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	if p := os.Getenv("LINKCHECK_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("chrome not available")
	return ""
}

func TestRendererIntegration(t *testing.T) {
	path := chromePath(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Hello from the test server</h1></body></html>`))
	}))
	t.Cleanup(srv.Close)

	r, err := New(Config{Headless: true, ExecPath: path, NoSandbox: true, UserAgent: "linkcheck-test"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()
	require.NoError(t, r.Navigate(ctx, srv.URL, 10*time.Second))
	n, err := r.WaitReady(ctx, 10*time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Greater(t, n, 20)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.ErrorIs(t, r.Navigate(ctx, srv.URL, time.Second), ErrRendererClosed)
}
