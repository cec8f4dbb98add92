package liveagent

import "time"

// Timer is the idle-timeout handle owned by a session. Abstracted so tests
// can drive the timeout with a simulated clock.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// TimerFactory creates a timer that fires fn once after d.
type TimerFactory func(d time.Duration, fn func()) Timer

type realTimer struct{ *time.Timer }

func newRealTimer(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}
