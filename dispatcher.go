package main

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	log "github.com/sirupsen/logrus"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

type MutationHandler interface {
	Upload(ctx context.Context, localPath string)
	Delete(ctx context.Context, localPath string)
}

// Dispatcher fans events out to a fixed set of workers. Every event for a
// given path lands on the same worker, so per-path delivery order is kept
// while unrelated paths proceed in parallel.
type Dispatcher struct {
	handler MutationHandler
	queues  []chan dispatchTask
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(handler MutationHandler, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	queues := make([]chan dispatchTask, workers)
	for i := range queues {
		queues[i] = make(chan dispatchTask, queueSize)
	}
	return &Dispatcher{handler: handler, queues: queues}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i, q := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, i, q)
	}
}

type dispatchTask struct {
	ev    Event
	after <-chan struct{}
	done  chan struct{}
}

// Dispatch queues ev on its path's worker, blocking while that queue is full.
// A rename is split: the upload runs on the new path's worker and the delete
// on the old path's worker, after the upload. Error events are logged and
// never queued.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	logger := log.WithFields(log.Fields{"component": "dispatcher", "op": ev.Op.String(), "path": ev.Path})

	if ev.Op == OpError {
		logger.WithError(ev.Err).Error("file watcher error")
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherStopped
	}

	if ev.Op != OpRenamed {
		logger.Info("file event")
		return d.enqueue(ctx, ev.Path, dispatchTask{ev: ev})
	}

	logger.WithField("from", ev.OldPath).Info("file event")
	uploaded := make(chan struct{})
	upload := dispatchTask{ev: Event{Op: OpModified, Path: ev.Path}, done: uploaded}
	if err := d.enqueue(ctx, ev.Path, upload); err != nil {
		return err
	}
	remove := dispatchTask{ev: Event{Op: OpDeleted, Path: ev.OldPath}, after: uploaded}
	return d.enqueue(ctx, ev.OldPath, remove)
}

func (d *Dispatcher) enqueue(ctx context.Context, path string, task dispatchTask) error {
	select {
	case d.queues[d.workerFor(path)] <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerFor(path string) int {
	h := fnv.New32a()
	h.Write([]byte(path))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, id int, q <-chan dispatchTask) {
	defer d.wg.Done()
	for task := range q {
		if task.after != nil {
			<-task.after
		}
		d.apply(ctx, task.ev)
		if task.done != nil {
			close(task.done)
		}
	}
	log.WithFields(log.Fields{"component": "dispatcher", "worker": id}).Debug("worker done")
}

func (d *Dispatcher) apply(ctx context.Context, ev Event) {
	switch ev.Op {
	case OpCreated, OpModified:
		d.handler.Upload(ctx, ev.Path)
	case OpDeleted:
		d.handler.Delete(ctx, ev.Path)
	default:
		log.WithFields(log.Fields{"component": "dispatcher", "path": ev.Path}).
			Warnf("ignoring unknown event %s", ev.Op)
	}
}
