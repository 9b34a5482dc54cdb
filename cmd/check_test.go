package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/config"
	"github.com/JakeFAU/linkcheck/internal/table"
)

type fakeBrowser struct {
	mu      sync.Mutex
	visited []string
	closed  bool
}

func (b *fakeBrowser) Navigate(_ context.Context, url string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visited = append(b.visited, url)
	return nil
}

func (b *fakeBrowser) WaitReady(context.Context, time.Duration, time.Duration) (int, error) {
	return 512, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func useFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fake := &fakeBrowser{}
	prev := newBrowser
	newBrowser = func(config.Config, *zap.Logger) (browser, error) { return fake, nil }
	t.Cleanup(func() { newBrowser = prev })
	return fake
}

func writeInput(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "colleges.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckWritesResultsAndResumes(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "Name,URL\nAlpha,alpha.example\nBeta,https://beta.example\n")
	output := filepath.Join(dir, "out", "results.csv")
	args := []string{"check", "--input", input, "--output", output, "--no-probe", "--log-level", "error"}

	first := useFakeBrowser(t)
	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "checked 2, valid 2")
	assert.Equal(t, []string{"http://alpha.example", "https://beta.example"}, first.visited)
	assert.True(t, first.closed)

	records, err := table.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Name", "URL", table.StatusColumn, table.DetailColumn}, records[0])
	assert.Equal(t, "valid", records[1][2])
	assert.Contains(t, records[1][3], "render:")
	assert.FileExists(t, filepath.Join(dir, "out", "results.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "out", "results_checkpoint.json"))

	second := useFakeBrowser(t)
	out, err = execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "checked 0")
	assert.Empty(t, second.visited, "resolved rows are not checked again")

	third := useFakeBrowser(t)
	_, err = execute(t, append(args, "--force-restart")...)
	require.NoError(t, err)
	assert.Len(t, third.visited, 2)
}

func TestCheckFailsWithoutURLColumn(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "Name,Notes\nAlpha,none\n")
	useFakeBrowser(t)

	_, err := execute(t, "check", "--input", input, "--output", filepath.Join(dir, "out.csv"), "--no-probe")
	require.ErrorIs(t, err, table.ErrColumnNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "out.csv"))
}

func TestCheckRequiresInput(t *testing.T) {
	_, err := execute(t, "check", "--output", filepath.Join(t.TempDir(), "out.csv"))
	require.ErrorContains(t, err, "input.path")
}

func TestCheckReportsAppInitFailure(t *testing.T) {
	prev := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("no database")
	}
	t.Cleanup(func() { newApp = prev })

	dir := t.TempDir()
	input := writeInput(t, dir, "URL\nalpha.example\n")
	_, err := execute(t, "check", "--input", input, "--output", filepath.Join(dir, "out.csv"))
	require.ErrorContains(t, err, "failed to initialize application services")
}

func useFailingBrowser(t *testing.T) {
	t.Helper()
	prev := newBrowser
	newBrowser = func(config.Config, *zap.Logger) (browser, error) { return nil, errors.New("chrome not found") }
	t.Cleanup(func() { newBrowser = prev })
}

func TestCheckBrowserLaunchFailure(t *testing.T) {
	useFailingBrowser(t)

	dir := t.TempDir()
	input := writeInput(t, dir, "URL\nalpha.example\n")
	output := filepath.Join(dir, "out", "results.csv")
	_, err := execute(t, "check", "--input", input, "--output", output, "--no-probe")
	require.ErrorContains(t, err, "chrome not found")

	records, err := table.ReadFile(output)
	require.NoError(t, err, "the reconciled table is still written")
	require.Len(t, records, 2)
	assert.Empty(t, records[1][1], "row stays unresolved")
	assert.FileExists(t, filepath.Join(dir, "out", "results.xlsx"))
}

func TestCheckCompleteTableSkipsBrowser(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "URL\nalpha.example\n")
	output := filepath.Join(dir, "out", "results.csv")
	xlsx := filepath.Join(dir, "out", "results.xlsx")
	args := []string{"check", "--input", input, "--output", output, "--no-probe", "--log-level", "error"}

	useFakeBrowser(t)
	_, err := execute(t, args...)
	require.NoError(t, err)
	require.NoError(t, os.Remove(xlsx))

	useFailingBrowser(t)
	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "checked 0, valid 1")
	assert.FileExists(t, xlsx, "a complete run still writes its final snapshot")
}
