package service

import (
	"blerelay"
	"blerelay/internal/countdown"
	"blerelay/internal/device"
	"blerelay/internal/diag"
)

type MonitoringService struct {
	store *device.Store
	ring  *diag.Ring
	sess  Session
}

func NewMonitoringService(store *device.Store, ring *diag.Ring, sess Session) *MonitoringService {
	return &MonitoringService{store: store, ring: ring, sess: sess}
}

// Status returns the link state, the current snapshot, and a countdown
// derived fresh from the appliance-reported clock. An appliance that has not
// reported time yet yields the countdown placeholder rather than a guess.
func (s *MonitoringService) Status() Status {
	snap := s.store.Snapshot()
	cd := countdown.Placeholder
	if s.sess.State() == blerelay.ConnConnected {
		cd = countdown.Until(snap.DeviceClock, snap.AlarmHour, snap.AlarmMinute)
	}
	return Status{
		ConnState: s.sess.State(),
		Snapshot:  snap,
		Countdown: cd,
	}
}

// Recent returns the in-memory diagnostic ring, oldest first.
func (s *MonitoringService) Recent() []diag.Entry {
	return s.ring.Entries()
}
