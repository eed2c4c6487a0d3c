// Package worker runs periodic background tasks for the CodeVault server.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/codevault/codevault/logging"
	"github.com/codevault/codevault/metrics"
	"github.com/codevault/codevault/store"
)

// DefaultTaskTimeout bounds a single task run.
const DefaultTaskTimeout = time.Minute

// TaskFunc is one unit of periodic work.
type TaskFunc func(ctx context.Context) error

// Task is a named function that runs on an interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      TaskFunc

	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
}

// Stats holds counters for one task.
type Stats struct {
	LastRun time.Time
	Runs    int64
	Errors  int64
}

// Worker runs a set of tasks until stopped.
type Worker struct {
	tasks   []Task
	logger  logging.Logger
	timeout time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.RWMutex
	stats map[string]Stats
}

// Config holds worker configuration.
type Config struct {
	// Logger for task failures. Defaults to logging.Nop().
	Logger logging.Logger

	// Timeout bounds each task run. Defaults to DefaultTaskTimeout.
	Timeout time.Duration
}

// New creates a worker for tasks. Tasks with a non-positive interval or a
// nil Run are ignored.
func New(cfg *Config, tasks ...Task) *Worker {
	if cfg == nil {
		cfg = &Config{}
	}
	w := &Worker{
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		done:    make(chan struct{}),
		stats:   make(map[string]Stats),
	}
	if w.logger == nil {
		w.logger = logging.Nop()
	}
	if w.timeout <= 0 {
		w.timeout = DefaultTaskTimeout
	}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			continue
		}
		w.tasks = append(w.tasks, t)
	}
	return w
}

// Start launches one goroutine per task.
func (w *Worker) Start() {
	for _, t := range w.tasks {
		w.wg.Add(1)
		go w.loop(t)
	}
}

// Stop signals every task to finish and waits for them. It is safe to call
// more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Worker) loop(t Task) {
	defer w.wg.Done()

	if t.RunOnStart {
		w.runTask(t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.runTask(t)
		}
	}
}

// RunNow runs every task once, synchronously.
func (w *Worker) RunNow() {
	for _, t := range w.tasks {
		w.runTask(t)
	}
}

func (w *Worker) runTask(t Task) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := t.Run(ctx)

	w.mu.Lock()
	s := w.stats[t.Name]
	s.LastRun = time.Now()
	s.Runs++
	if err != nil {
		s.Errors++
	}
	w.stats[t.Name] = s
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn(ctx, "background task failed", "task", t.Name, "error", err)
	}
}

// Stats returns the counters of the named task.
func (w *Worker) Stats(name string) Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats[name]
}

// UserGauge returns a task that publishes the user count to rec.
func UserGauge(users store.UserStore, rec metrics.Recorder, interval time.Duration) Task {
	return Task{
		Name:       "user-gauge",
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			n, err := users.CountUsers(ctx)
			if err != nil {
				return err
			}
			rec.SetUsers(n)
			return nil
		},
	}
}

// Pinger is anything with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a task that pings p and logs when its state changes.
func HealthCheck(name string, p Pinger, logger logging.Logger, interval time.Duration) Task {
	if logger == nil {
		logger = logging.Nop()
	}
	var mu sync.Mutex
	healthy := true
	return Task{
		Name:     name + "-health",
		Interval: interval,
		Run: func(ctx context.Context) error {
			err := p.Ping(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && healthy:
				healthy = false
				logger.Error(ctx, "dependency unhealthy", "dependency", name, "error", err)
			case err == nil && !healthy:
				healthy = true
				logger.Info(ctx, "dependency recovered", "dependency", name)
			}
			return err
		},
	}
}
