package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/storage/postgres"
	"github.com/JakeFAU/linkcheck/internal/table"
)

type finishCall struct {
	runID   string
	status  postgres.RunStatus
	summary table.Summary
	note    *string
}

type fakeRecorder struct {
	starts   []string
	finishes []finishCall
	err      error
}

func (f *fakeRecorder) StartRun(_ context.Context, runID, inputPath, inputSHA string) error {
	f.starts = append(f.starts, runID+"|"+inputPath+"|"+inputSHA)
	return f.err
}

func (f *fakeRecorder) FinishRun(
	_ context.Context,
	runID string,
	status postgres.RunStatus,
	summary table.Summary,
	errMsg *string,
) error {
	f.finishes = append(f.finishes, finishCall{runID, status, summary, errMsg})
	return f.err
}

// TestLedgerSinkRecordsLifecycle maps run stages onto ledger calls.
func TestLedgerSinkRecordsLifecycle(t *testing.T) {
	t.Parallel()

	repo := &fakeRecorder{}
	sink := NewLedgerSink(repo, nil)
	now := time.Now().UTC()
	summary := table.Summary{Total: 2, Valid: 1, Invalid: 1}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageRunStart, InputPath: "in.csv", InputSHA256: "abc"},
		{RunID: "r1", TS: now, Stage: progress.StageRowDone, Status: table.StatusValid},
		{RunID: "r1", TS: now, Stage: progress.StageCheckpoint, Summary: summary},
		{RunID: "r1", TS: now, Stage: progress.StageRunDone, Summary: summary},
		{RunID: "r2", TS: now, Stage: progress.StageRunError, Note: "browser crashed"},
		{RunID: "r3", TS: now, Stage: progress.StageRunCancelled},
	}))

	assert.Equal(t, []string{"r1|in.csv|abc"}, repo.starts)
	require.Len(t, repo.finishes, 3)
	assert.Equal(t, postgres.RunSuccess, repo.finishes[0].status)
	assert.Equal(t, summary, repo.finishes[0].summary)
	assert.Nil(t, repo.finishes[0].note)
	assert.Equal(t, postgres.RunError, repo.finishes[1].status)
	require.NotNil(t, repo.finishes[1].note)
	assert.Equal(t, "browser crashed", *repo.finishes[1].note)
	assert.Equal(t, postgres.RunCancelled, repo.finishes[2].status)
}

// TestLedgerSinkHandlesErrors surfaces repository failures back to the caller.
func TestLedgerSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRecorder{err: errors.New("db down")}
	sink := NewLedgerSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "r", TS: time.Now(), Stage: progress.StageRunStart},
	})
	require.ErrorContains(t, err, "record run start")

	var nilSink *LedgerSink
	require.NoError(t, nilSink.Consume(context.Background(), nil))
}
