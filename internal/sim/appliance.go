// Package sim is the in-process stand-in for the relay appliance. It consumes
// the same four-command vocabulary and produces the same notification frames
// as real firmware, with no transport underneath, so the session layer cannot
// tell the difference.
package sim

import (
	"context"
	"sync"
	"time"

	"blerelay"
	"blerelay/internal/logger"
	"blerelay/internal/protocol"
)

const secondsPerDay = 86400

// Appliance models the embedded device: relay, arming mode, alarm schedule
// and a self-advancing clock. All timing derives from the tick counter, never
// from wall clock, so runs are deterministic and replayable.
type Appliance struct {
	mu        sync.Mutex
	codec     protocol.Codec
	log       *logger.Logger
	mode      blerelay.Mode
	relay     bool
	alarmH    int
	alarmM    int
	clock     int64 // epoch seconds, advanced one per tick
	ticks     uint64
	lastFired int64 // clock value of the last alarm firing
	notify    func(frame []byte)
}

// NewAppliance builds an appliance speaking the given wire profile.
// initialClock of zero means the device has not been time-synced yet; the
// clock still ticks so behavior stays deterministic from boot.
func NewAppliance(codec protocol.Codec, initialClock int64, log *logger.Logger) *Appliance {
	return &Appliance{
		codec:     codec,
		log:       log,
		mode:      blerelay.ModeIdle,
		clock:     initialClock,
		lastFired: -1,
	}
}

// Run advances the appliance at the given cadence until ctx is canceled.
func (a *Appliance) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.Tick()
		}
	}
}

// Tick advances the device clock by exactly one second and evaluates the
// alarm. While armed, the alarm fires when second-of-day reaches HH:MM:00;
// once for that second, never again until the clock next matches.
func (a *Appliance) Tick() {
	a.mu.Lock()
	a.ticks++
	a.clock++

	fired := false
	if a.mode == blerelay.ModeArmed && a.clock != a.lastFired && a.secondOfDay() == a.alarmSecond() {
		a.mode = blerelay.ModeOn
		a.relay = true
		a.lastFired = a.clock
		fired = true
	}

	var frames [][]byte
	if fired {
		if f, err := a.codec.EncodeNotification(a.snapshotLocked()); err == nil {
			frames = append(frames, f)
		}
	} else if f, ok := a.heartbeatLocked(); ok {
		frames = append(frames, f)
	}
	sink := a.notify
	clock, alarmH, alarmM := a.clock, a.alarmH, a.alarmM
	a.mu.Unlock()

	if fired && a.log != nil {
		a.log.Infow("sim_alarm_fired", "clock", clock, "alarm_h", alarmH, "alarm_m", alarmM)
	}
	a.push(sink, frames)
}

// HandleFrame consumes one encoded command frame, exactly as firmware would
// read it off the characteristic. Malformed frames are logged and dropped;
// accepted commands answer with a full state notification.
func (a *Appliance) HandleFrame(data []byte) {
	cmd, err := a.codec.DecodeCommand(data)
	if err != nil {
		if a.log != nil {
			a.log.Infow("sim_bad_command_frame", "frame", string(data), "err", err)
		}
		return
	}

	a.mu.Lock()
	a.apply(cmd)
	frame, encErr := a.codec.EncodeNotification(a.snapshotLocked())
	sink := a.notify
	a.mu.Unlock()

	if encErr == nil {
		a.push(sink, [][]byte{frame})
	}
}

// apply mutates device state under a.mu.
func (a *Appliance) apply(cmd blerelay.Command) {
	switch cmd.Kind {
	case blerelay.CmdSyncTime:
		// Deliberate re-base; the only sanctioned clock rewind.
		a.clock = cmd.Timestamp
		a.lastFired = -1
	case blerelay.CmdSetAlarm:
		a.alarmH = cmd.Hour
		a.alarmM = cmd.Minute
	case blerelay.CmdToggleArm:
		arm := a.mode != blerelay.ModeArmed
		if cmd.Level != nil {
			arm = *cmd.Level
		}
		if arm {
			a.mode = blerelay.ModeArmed
		} else {
			// Disarming forces the relay off as a safety default.
			a.mode = blerelay.ModeIdle
			a.relay = false
		}
	case blerelay.CmdToggleRelay:
		if cmd.Level != nil {
			a.relay = *cmd.Level
		} else {
			a.relay = !a.relay
		}
	}
}

// Attach installs the notification sink and immediately pushes the current
// state so a fresh subscriber syncs without waiting for the next change.
func (a *Appliance) Attach(sink func(frame []byte)) {
	a.mu.Lock()
	a.notify = sink
	frame, err := a.codec.EncodeNotification(a.snapshotLocked())
	a.mu.Unlock()
	if err == nil {
		a.push(sink, [][]byte{frame})
	}
}

// Detach removes the notification sink.
func (a *Appliance) Detach() {
	a.mu.Lock()
	a.notify = nil
	a.mu.Unlock()
}

// Snapshot reports current device state (for tests and inspection).
func (a *Appliance) Snapshot() blerelay.DeviceSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Appliance) snapshotLocked() blerelay.DeviceSnapshot {
	return blerelay.DeviceSnapshot{
		Mode:        a.mode,
		Relay:       a.relay,
		AlarmHour:   a.alarmH,
		AlarmMinute: a.alarmM,
		DeviceClock: a.clock,
	}
}

// heartbeatLocked encodes the per-tick clock report for profiles that carry
// the device clock on the wire; the compact profile has none.
func (a *Appliance) heartbeatLocked() ([]byte, bool) {
	if a.codec.Name() != protocol.VariantJSON {
		return nil, false
	}
	f, err := protocol.EncodeClockReport(a.clock)
	if err != nil {
		return nil, false
	}
	return f, true
}

func (a *Appliance) secondOfDay() int64 {
	s := a.clock % secondsPerDay
	if s < 0 {
		s += secondsPerDay
	}
	return s
}

func (a *Appliance) alarmSecond() int64 {
	return int64(a.alarmH)*3600 + int64(a.alarmM)*60
}

// push delivers frames outside the appliance lock, preserving order.
func (a *Appliance) push(sink func([]byte), frames [][]byte) {
	if sink == nil {
		return
	}
	for _, f := range frames {
		sink(f)
	}
}
