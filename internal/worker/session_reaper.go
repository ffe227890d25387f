package worker

import (
	"log/slog"
	"sync"
	"time"
)

const defaultReapInterval = time.Minute

// IdleSessionEnder is satisfied by *session.Manager.
type IdleSessionEnder interface {
	EndIdle(cutoff time.Time) int
}

// SessionReaper periodically ends sessions that have been idle longer than maxIdle.
type SessionReaper struct {
	sessions IdleSessionEnder
	maxIdle  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewSessionReaper(sessions IdleSessionEnder, maxIdle, interval time.Duration, logger *slog.Logger) *SessionReaper {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	return &SessionReaper{
		sessions: sessions,
		maxIdle:  maxIdle,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *SessionReaper) Start() {
	w.logger.Info("session_reaper_started",
		slog.Duration("max_idle", w.maxIdle),
		slog.Duration("interval", w.interval))
	go w.run()
}

// Stop halts the loop and waits for it to exit.
func (w *SessionReaper) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("session_reaper_stopping")
		close(w.stopChan)
	})
	<-w.done
}

func (w *SessionReaper) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.reapOnce()
		}
	}
}

func (w *SessionReaper) reapOnce() int {
	n := w.sessions.EndIdle(w.now().Add(-w.maxIdle))
	if n > 0 {
		w.logger.Info("idle_sessions_ended", slog.Int("count", n))
	}
	return n
}
