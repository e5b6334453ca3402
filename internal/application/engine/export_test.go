package engine

import "time"

// SetClock replaces the wall clock the loop reads. Call before Run.
func SetClock(e *Engine, now func() time.Time) { e.now = now }
