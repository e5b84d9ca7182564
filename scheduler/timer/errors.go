package timer

import "errors"

// ErrClosed is returned by ScheduleAt after Close.
var ErrClosed = errors.New("timer: deferrer closed")
