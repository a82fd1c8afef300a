// Package device holds the authoritative in-memory snapshot of appliance
// state. The store is the only piece of state written from two call sites
// (notification receipt, simulator side effects); everything serializes
// through Apply so no reader ever observes a torn snapshot.
package device

import (
	"sync"
	"time"

	"blerelay"
	"blerelay/internal/protocol"
)

// Store is a single-writer snapshot holder. Callers other than the codec
// pipeline never get raw field setters.
type Store struct {
	mu   sync.RWMutex
	snap blerelay.DeviceSnapshot
}

func NewStore() *Store {
	return &Store{snap: blerelay.DeviceSnapshot{Mode: blerelay.ModeIdle}}
}

// Apply merges a decoded notification into the snapshot and stamps the local
// receipt time. The update's own flags pick the policy: full replace of
// mode/relay/alarm for the compact profile, field-wise merge for the verbose
// one. Validation happened in the decoder; none is repeated here.
func (s *Store) Apply(u protocol.Update, receivedAt time.Time) blerelay.DeviceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Replace {
		// All four fields are mandatory in a replace-style frame.
		s.snap.Mode = *u.Mode
		s.snap.Relay = *u.Relay
		s.snap.AlarmHour = *u.AlarmHour
		s.snap.AlarmMinute = *u.AlarmMinute
	} else {
		if u.Mode != nil {
			s.snap.Mode = *u.Mode
		}
		if u.Relay != nil {
			s.snap.Relay = *u.Relay
		}
		if u.AlarmHour != nil {
			s.snap.AlarmHour = *u.AlarmHour
		}
		if u.AlarmMinute != nil {
			s.snap.AlarmMinute = *u.AlarmMinute
		}
	}
	if u.DeviceClock != nil {
		s.snap.DeviceClock = *u.DeviceClock
	} else if u.ClockFromReceipt {
		s.snap.DeviceClock = receivedAt.Unix()
	}
	s.snap.UpdatedAt = receivedAt

	return s.snap
}

// Snapshot returns the current state in full, pre- or post-update but never
// in between.
func (s *Store) Snapshot() blerelay.DeviceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reset discards session state on disconnect.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = blerelay.DeviceSnapshot{Mode: blerelay.ModeIdle}
}
