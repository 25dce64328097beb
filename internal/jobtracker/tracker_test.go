package jobtracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/mediaforge/internal/entities"
)

// stubRunner returns canned results and can be made to block until released.
type stubRunner struct {
	mu      sync.Mutex
	calls   int
	output  string
	err     error
	release chan struct{} // when non-nil, Execute blocks on it
}

func (r *stubRunner) Execute(_ context.Context, _, _ string, _ entities.TranscodeParams) (string, error) {
	r.mu.Lock()
	r.calls++
	release := r.release
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	return r.output, r.err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSubmitEventuallyCompletes(t *testing.T) {
	runner := &stubRunner{output: "transcoded/alice/v_mp4.mp4"}
	tracker := New(runner, 2, 10)
	defer tracker.Close()

	job, err := tracker.Submit("alice", "uploads/alice/v.mp4", entities.TranscodeParams{Format: "mp4"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "alice", job.Owner)
	assert.False(t, job.Status.Terminal())

	require.Eventually(t, func() bool {
		got, err := tracker.Get(job.ID)
		return err == nil && got.Status == entities.JobCompleted
	}, 5*time.Second, 5*time.Millisecond)

	got, err := tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "transcoded/alice/v_mp4.mp4", got.OutputRef)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
}

func TestSubmitFailureRecordsErrorOnce(t *testing.T) {
	runner := &stubRunner{err: errors.New("ffmpeg exited with status 1")}
	tracker := New(runner, 1, 10)
	defer tracker.Close()

	job, err := tracker.Submit("alice", "uploads/alice/v.mp4", entities.TranscodeParams{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := tracker.Get(job.ID)
		return got.Status == entities.JobFailed
	}, 5*time.Second, 5*time.Millisecond)

	got, err := tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg exited with status 1", got.Error)
	assert.Empty(t, got.OutputRef)

	// Failed means failed: no retry ever happens.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())
}

func TestTerminalStateNeverReverts(t *testing.T) {
	runner := &stubRunner{output: "out"}
	tracker := New(runner, 1, 10)
	defer tracker.Close()

	job, err := tracker.Submit("alice", "uploads/alice/v.mp4", entities.TranscodeParams{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := tracker.Get(job.ID)
		return got.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	for i := 0; i < 20; i++ {
		got, err := tracker.Get(job.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.JobCompleted, got.Status)
		time.Sleep(time.Millisecond)
	}
}

func TestGetUnknownJob(t *testing.T) {
	tracker := New(&stubRunner{}, 1, 10)
	defer tracker.Close()

	_, err := tracker.Get("j_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByOwnerFilters(t *testing.T) {
	runner := &stubRunner{output: "out"}
	tracker := New(runner, 2, 10)
	defer tracker.Close()

	_, err := tracker.Submit("alice", "uploads/alice/a.mp4", entities.TranscodeParams{})
	require.NoError(t, err)
	_, err = tracker.Submit("alice", "uploads/alice/b.mp4", entities.TranscodeParams{})
	require.NoError(t, err)
	_, err = tracker.Submit("bob", "uploads/bob/c.mp4", entities.TranscodeParams{})
	require.NoError(t, err)

	assert.Len(t, tracker.ListByOwner("alice"), 2)
	assert.Len(t, tracker.ListByOwner("bob"), 1)
	assert.Empty(t, tracker.ListByOwner("carol"))
}

func TestRunSyncCreatesNoRecord(t *testing.T) {
	runner := &stubRunner{output: "transcoded/alice/v_webm.webm"}
	tracker := New(runner, 1, 10)
	defer tracker.Close()

	out, err := tracker.RunSync(context.Background(), "alice", "uploads/alice/v.mp4", entities.TranscodeParams{Format: "webm"})
	require.NoError(t, err)
	assert.Equal(t, "transcoded/alice/v_webm.webm", out)
	assert.Empty(t, tracker.ListByOwner("alice"))
}

func TestRunSyncPropagatesError(t *testing.T) {
	runner := &stubRunner{err: errors.New("boom")}
	tracker := New(runner, 1, 10)
	defer tracker.Close()

	_, err := tracker.RunSync(context.Background(), "alice", "uploads/alice/v.mp4", entities.TranscodeParams{})
	assert.EqualError(t, err, "boom")
}

func TestSubmitBacklogFull(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{output: "out", release: release}
	tracker := New(runner, 1, 1)
	defer tracker.Close()

	// First job occupies the single worker.
	first, err := tracker.Submit("alice", "uploads/alice/a.mp4", entities.TranscodeParams{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := tracker.Get(first.ID)
		return got.Status == entities.JobRunning
	}, 5*time.Second, time.Millisecond)

	// Second job fills the backlog slot.
	_, err = tracker.Submit("alice", "uploads/alice/b.mp4", entities.TranscodeParams{})
	require.NoError(t, err)

	// Third has nowhere to go; it is rejected and recorded as failed.
	third, err := tracker.Submit("alice", "uploads/alice/c.mp4", entities.TranscodeParams{})
	assert.ErrorIs(t, err, ErrBacklogFull)
	assert.Empty(t, third.ID)

	close(release)
}

func TestSubmitRacingCloseNeverPanics(t *testing.T) {
	for i := 0; i < 50; i++ {
		tracker := New(&stubRunner{output: "out"}, 2, 4)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					_, err := tracker.Submit("alice", "uploads/alice/v.mp4", entities.TranscodeParams{})
					if errors.Is(err, ErrTrackerClose) {
						return
					}
					if err != nil && !errors.Is(err, ErrBacklogFull) {
						t.Error(err)
						return
					}
				}
			}()
		}

		tracker.Close()
		wg.Wait()
	}
}

func TestSubmitAfterClose(t *testing.T) {
	tracker := New(&stubRunner{}, 1, 10)
	tracker.Close()

	_, err := tracker.Submit("alice", "uploads/alice/v.mp4", entities.TranscodeParams{})
	assert.ErrorIs(t, err, ErrTrackerClose)
}

func TestCloseWaitsForInflight(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{output: "out", release: release}
	tracker := New(runner, 1, 10)

	job, err := tracker.Submit("alice", "uploads/alice/v.mp4", entities.TranscodeParams{})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	tracker.Close()

	got, err := tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobCompleted, got.Status)
}
