package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type EngineConfig struct {
	WatchRoot   string
	Container   string
	Workers     int
	QueueSize   int
	Concurrency int
	Exclude     []string
	Retry       RetryPolicy
	// ReportInterval of zero disables periodic reports.
	ReportInterval time.Duration
}

// Engine owns one synchronization session between a watch root and a
// remote container.
type Engine struct {
	cfg        EngineConfig
	store      RemoteStore
	notifier   Notifier
	reconciler *Reconciler
	mutator    *Mutator
	results    *ResultMap
}

func NewEngine(cfg EngineConfig, store RemoteStore, fs afero.Fs, notifier Notifier) (*Engine, error) {
	if cfg.WatchRoot == "" {
		return nil, errors.New("watch root is required")
	}
	if store == nil {
		return nil, errors.New("remote store is required")
	}
	filter, err := NewExclusionFilter(cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	mapper := NewPathMapper(cfg.WatchRoot)
	var results *ResultMap
	if cfg.ReportInterval > 0 {
		results = NewResultMap()
	}

	return &Engine{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		reconciler: &Reconciler{
			store:       store,
			fs:          fs,
			mapper:      mapper,
			filter:      filter,
			retry:       cfg.Retry,
			concurrency: cfg.Concurrency,
		},
		mutator: &Mutator{
			store:   store,
			fs:      fs,
			mapper:  mapper,
			filter:  filter,
			retry:   cfg.Retry,
			results: results,
		},
		results: results,
	}, nil
}

// Reconcile runs one reconciliation pass and reports its failures.
func (e *Engine) Reconcile(ctx context.Context) *ResultMap {
	results, err := e.reconciler.Reconcile(ctx)
	if err != nil {
		return results
	}
	if e.notifier != nil && results.Summary().Failures() > 0 {
		if notifyErr := e.notifier.NotifyReconcileResults(ctx, e.cfg.Container, results); notifyErr != nil {
			log.WithFields(log.Fields{"component": "engine", "op": "notify"}).
				WithError(notifyErr).Warn("Failed to publish reconciliation results")
		}
	}
	return results
}

// Run reconciles once, then applies every event from source until ctx ends
// or source closes its channel. Only a source that cannot be started is
// reported as an error; remote failures are logged.
func (e *Engine) Run(ctx context.Context, source EventSource) error {
	logger := log.WithFields(log.Fields{"component": "engine", "op": "run"})

	if err := e.store.EnsureContainer(ctx); err != nil {
		logger.WithError(err).Error(fmt.Sprintf("Failed to ensure container %s exists", e.cfg.Container))
	}

	e.Reconcile(ctx)
	if ctx.Err() != nil {
		return nil
	}

	// queued mutations finish even after ctx is cancelled
	dispatcher := NewDispatcher(e.mutator, e.cfg.Workers, e.cfg.QueueSize)
	dispatcher.Start(context.WithoutCancel(ctx))

	if err := source.Start(ctx); err != nil {
		dispatcher.Stop()
		return fmt.Errorf("arming file watcher: %w", err)
	}

	var reporter *Reporter
	if e.results != nil {
		var err error
		reporter, err = NewReporter(e.cfg.ReportInterval, e.results, e.notifier, e.cfg.Container)
		if err != nil {
			logger.WithError(err).Error("Failed to start reporter")
		} else {
			reporter.Start()
		}
	}

	logger.Info("Watching for changes")
	e.forward(ctx, source, dispatcher)

	source.Stop()
	dispatcher.Stop()
	if reporter != nil {
		reporter.Stop()
	}
	logger.Info("Stopped")

	return nil
}

func (e *Engine) forward(ctx context.Context, source EventSource, dispatcher *Dispatcher) {
	events := source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := dispatcher.Dispatch(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithFields(log.Fields{"component": "engine", "op": "dispatch", "path": ev.Path}).
					WithError(err).Error("Failed to dispatch event")
			}
		}
	}
}
