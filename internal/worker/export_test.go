package worker

import "time"

func (w *SessionReaper) ReapOnce() int { return w.reapOnce() }

func (w *SessionReaper) SetNow(now func() time.Time) { w.now = now }
