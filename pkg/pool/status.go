package pool

import (
	"time"

	"github.com/mandelsoft/goutils/general"
)

// Status is the outcome of one Dispatch call for a queued key.
// Contract:
// Completed  Error
//  true,      nil: rule body finished normally
//  true,      err: rule body finished but reported a soft failure, re-add rate limited
//  false,     nil: rule body needs another pass immediately (e.g. it made progress but is not done), re-add
//  false,     err: rule body failed hard

type Status struct {
	Completed bool
	Error     error

	// Interval selects a rescheduling delay for the item:
	// -1 (default) no modification
	//  0 no reschedule
	//  >0 reschedule after the given interval
	Interval time.Duration
}

func (s Status) IsSucceeded() bool {
	return s.Completed && s.Error == nil
}

func (s Status) IsDelayed() bool {
	return s.Completed && s.Error != nil
}

func (s Status) IsFailed() bool {
	return !s.Completed && s.Error != nil
}

func (s Status) MustBeRepeated() bool {
	return !s.Completed && s.Error == nil
}

func (s Status) RescheduleAfter(d time.Duration) Status {
	if s.Interval < 0 || d < s.Interval {
		s.Interval = d
	}
	return s
}

func (s Status) Stop() Status {
	s.Interval = 0
	return s
}

func (s Status) StopIfSucceeded() Status {
	if s.IsSucceeded() {
		s.Interval = 0
	}
	return s
}

func StatusCompleted(err ...error) Status {
	return Status{Completed: true, Error: general.Optional(err...), Interval: -1}
}

func StatusFailed(err error) Status {
	return Status{Completed: false, Error: err, Interval: -1}
}

func StatusRedo() Status {
	return Status{Completed: false, Error: nil, Interval: -1}
}
