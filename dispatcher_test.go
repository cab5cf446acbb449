package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Op   string
	Path string
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []recordedCall
	// block, when set, holds Upload for that path until released
	block   string
	release chan struct{}
}

func (h *recordingHandler) Upload(ctx context.Context, localPath string) {
	if h.block != "" && localPath == h.block {
		<-h.release
	}
	h.record("upload", localPath)
}

func (h *recordingHandler) Delete(ctx context.Context, localPath string) {
	h.record("delete", localPath)
}

func (h *recordingHandler) record(op, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, recordedCall{Op: op, Path: path})
}

func (h *recordingHandler) Calls() []recordedCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedCall(nil), h.calls...)
}

func TestDispatchRenameUploadsThenDeletes(t *testing.T) {
	handler := &recordingHandler{}
	d := NewDispatcher(handler, 4, 8)
	d.Start(context.Background())

	err := d.Dispatch(context.Background(), Event{Op: OpRenamed, Path: "/srv/www/new.txt", OldPath: "/srv/www/old.txt"})
	require.NoError(t, err)
	d.Stop()

	assert.Equal(t, []recordedCall{
		{Op: "upload", Path: "/srv/www/new.txt"},
		{Op: "delete", Path: "/srv/www/old.txt"},
	}, handler.Calls())
}

func TestDispatchRenameThenRecreateKeepsOldPathOrder(t *testing.T) {
	const oldPath = "/srv/www/a.txt"
	d := NewDispatcher(nil, 4, 8)

	// the new path must land on a different worker than the old one
	newPath := ""
	for i := 0; i < 100; i++ {
		candidate := fmt.Sprintf("/srv/www/b-%d.txt", i)
		if d.workerFor(candidate) != d.workerFor(oldPath) {
			newPath = candidate
			break
		}
	}
	require.NotEmpty(t, newPath)

	handler := &recordingHandler{block: newPath, release: make(chan struct{})}
	d.handler = handler
	d.Start(context.Background())

	require.NoError(t, d.Dispatch(context.Background(), Event{Op: OpRenamed, Path: newPath, OldPath: oldPath}))
	require.NoError(t, d.Dispatch(context.Background(), Event{Op: OpCreated, Path: oldPath}))

	// nothing on the old path may run ahead of the rename's upload
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, handler.Calls())

	close(handler.release)
	d.Stop()

	var oldOps []string
	for _, call := range handler.Calls() {
		if call.Path == oldPath {
			oldOps = append(oldOps, call.Op)
		}
	}
	assert.Equal(t, []string{"delete", "upload"}, oldOps)
	assert.Equal(t, recordedCall{Op: "upload", Path: newPath}, handler.Calls()[0])
}

func TestDispatchMapsEventsToMutations(t *testing.T) {
	handler := &recordingHandler{}
	d := NewDispatcher(handler, 1, 8)
	d.Start(context.Background())

	for _, ev := range []Event{
		{Op: OpCreated, Path: "/srv/www/a.txt"},
		{Op: OpModified, Path: "/srv/www/a.txt"},
		{Op: OpDeleted, Path: "/srv/www/a.txt"},
	} {
		require.NoError(t, d.Dispatch(context.Background(), ev))
	}
	d.Stop()

	assert.Equal(t, []recordedCall{
		{Op: "upload", Path: "/srv/www/a.txt"},
		{Op: "upload", Path: "/srv/www/a.txt"},
		{Op: "delete", Path: "/srv/www/a.txt"},
	}, handler.Calls())
}

func TestDispatchKeepsPerPathOrder(t *testing.T) {
	handler := &recordingHandler{}
	d := NewDispatcher(handler, 4, 2)
	d.Start(context.Background())

	paths := []string{"/srv/www/a.txt", "/srv/www/b.txt", "/srv/www/c.txt"}
	for i := 0; i < 20; i++ {
		for _, p := range paths {
			op := OpModified
			if i%2 == 1 {
				op = OpDeleted
			}
			require.NoError(t, d.Dispatch(context.Background(), Event{Op: op, Path: p}))
		}
	}
	d.Stop()

	perPath := make(map[string][]string)
	for _, call := range handler.Calls() {
		perPath[call.Path] = append(perPath[call.Path], call.Op)
	}
	for _, p := range paths {
		ops := perPath[p]
		require.Len(t, ops, 20, p)
		for i, op := range ops {
			want := "upload"
			if i%2 == 1 {
				want = "delete"
			}
			assert.Equal(t, want, op, fmt.Sprintf("%s event %d", p, i))
		}
	}
}

func TestDispatchUnrelatedPathsDoNotWait(t *testing.T) {
	const slow = "/srv/www/slow.bin"
	handler := &recordingHandler{block: slow, release: make(chan struct{})}
	d := NewDispatcher(handler, 4, 4)

	// pick a path that lands on a different worker than the slow one
	fast := ""
	for i := 0; i < 100; i++ {
		candidate := fmt.Sprintf("/srv/www/fast-%d.txt", i)
		if d.workerFor(candidate) != d.workerFor(slow) {
			fast = candidate
			break
		}
	}
	require.NotEmpty(t, fast)

	d.Start(context.Background())
	require.NoError(t, d.Dispatch(context.Background(), Event{Op: OpCreated, Path: slow}))
	require.NoError(t, d.Dispatch(context.Background(), Event{Op: OpCreated, Path: fast}))

	assert.Eventually(t, func() bool {
		calls := handler.Calls()
		return len(calls) == 1 && calls[0].Path == fast
	}, time.Second, 5*time.Millisecond)

	close(handler.release)
	d.Stop()
	assert.Len(t, handler.Calls(), 2)
}

func TestDispatchErrorEventsAreNotQueued(t *testing.T) {
	handler := &recordingHandler{}
	d := NewDispatcher(handler, 2, 2)
	d.Start(context.Background())

	err := d.Dispatch(context.Background(), Event{Op: OpError, Err: ErrEventOverflow})
	require.NoError(t, err)
	d.Stop()

	assert.Empty(t, handler.Calls())
}

func TestDispatchAfterStop(t *testing.T) {
	d := NewDispatcher(&recordingHandler{}, 2, 2)
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	err := d.Dispatch(context.Background(), Event{Op: OpCreated, Path: "/srv/www/a.txt"})

	assert.ErrorIs(t, err, ErrDispatcherStopped)
}

func TestDispatchHonorsContextWhenQueueIsFull(t *testing.T) {
	d := NewDispatcher(&recordingHandler{}, 1, 1)
	// workers not started, so the single slot stays full
	require.NoError(t, d.Dispatch(context.Background(), Event{Op: OpCreated, Path: "/srv/www/a.txt"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Dispatch(ctx, Event{Op: OpCreated, Path: "/srv/www/b.txt"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
