package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blerelay"
	"blerelay/internal/ble"
	"blerelay/internal/device"
	"blerelay/internal/diag"
	"blerelay/internal/logger"
	"blerelay/internal/protocol"
	"blerelay/internal/repository"
)

// Handshake and send failures surfaced to the operator. Handshake errors wrap
// one of the five descriptive reasons; none of them is fatal to the process.
var (
	ErrNoDeviceChosen         = errors.New("no device chosen")
	ErrLinkFailed             = errors.New("link failed")
	ErrServiceNotFound        = errors.New("service not found")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrSubscriptionFailed     = errors.New("subscription failed")

	// ErrNotConnected is the uniform policy for commands issued while the
	// link is down: explicit rejection, same for both wire profiles.
	ErrNotConnected = errors.New("not connected")

	ErrBusy           = errors.New("connection attempt already in progress")
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

// Journal event types.
const (
	EventConnect    = "CONNECT"
	EventDisconnect = "DISCONNECT"
	EventCommand    = "COMMAND"
	EventError      = "ERROR"
	EventAlarm      = "ALARM"
)

// SessionService is the connection lifecycle state machine:
// IDLE -> CONNECTING -> CONNECTED -> IDLE. It binds the transport's
// notification and disconnect callbacks and routes decoded frames into the
// device store. Decoding runs synchronously on receipt, one frame at a time,
// so arrival order is preserved and no notification can interleave another.
type SessionService struct {
	provider ble.Provider
	codec    protocol.Codec
	store    *device.Store
	ring     *diag.Ring
	events   repository.EventRepo
	log      *logger.Logger

	mu      sync.Mutex
	state   blerelay.ConnState
	session ble.Session
	channel ble.Channel
	// attempt numbers each connect; bumping it invalidates in-flight
	// handshakes and frames from superseded sessions.
	attempt uint64
}

func NewSessionService(provider ble.Provider, codec protocol.Codec, store *device.Store,
	ring *diag.Ring, events repository.EventRepo, log *logger.Logger) *SessionService {
	return &SessionService{
		provider: provider,
		codec:    codec,
		store:    store,
		ring:     ring,
		events:   events,
		log:      log,
		state:    blerelay.ConnIdle,
	}
}

// State reports the current lifecycle state.
func (s *SessionService) State() blerelay.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect runs the handshake: request link, connect, resolve service, resolve
// characteristic, subscribe, strictly in that order, so the layer can observe
// command effects before any command is sent. Any failure forces CONNECTING
// back to IDLE with a descriptive reason. A Disconnect racing the handshake
// wins: the late success is torn down, never resurrected into CONNECTED.
func (s *SessionService) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != blerelay.ConnIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = blerelay.ConnConnecting
	s.attempt++
	gen := s.attempt
	s.mu.Unlock()

	// Fresh session, fresh snapshot.
	s.store.Reset()

	link, err := s.provider.RequestLink(ctx, ble.ServiceUUID)
	if err != nil {
		return s.failHandshake(gen, nil, ErrNoDeviceChosen, err)
	}
	sess, err := link.Connect(ctx)
	if err != nil {
		return s.failHandshake(gen, nil, ErrLinkFailed, err)
	}
	svc, err := sess.Service(ctx, ble.ServiceUUID)
	if err != nil {
		return s.failHandshake(gen, sess, ErrServiceNotFound, err)
	}
	ch, err := svc.Characteristic(ctx, ble.CharacteristicUUID)
	if err != nil {
		return s.failHandshake(gen, sess, ErrCharacteristicNotFound, err)
	}
	sess.OnDisconnected(func() { s.handleRemoteDisconnect(gen) })
	if err := ch.Subscribe(ctx, func(data []byte) { s.handleFrame(gen, data) }); err != nil {
		return s.failHandshake(gen, sess, ErrSubscriptionFailed, err)
	}

	s.mu.Lock()
	if s.attempt != gen || s.state != blerelay.ConnConnecting {
		// Disconnect raced us; discard this link.
		s.mu.Unlock()
		_ = sess.Close()
		return ErrConnectAborted
	}
	s.session = sess
	s.channel = ch
	s.state = blerelay.ConnConnected
	s.mu.Unlock()

	s.log.Infow("device_connected", "protocol", s.codec.Name())
	s.journal(EventConnect, "Device connected", map[string]any{"protocol": s.codec.Name()})
	return nil
}

// Disconnect requests teardown and immediately forces IDLE, regardless of
// transport acknowledgement; a half-torn-down link must not block the caller.
// Safe to call mid-handshake and safe to call twice.
func (s *SessionService) Disconnect() {
	s.mu.Lock()
	prev := s.state
	s.attempt++ // invalidate in-flight connects and stale frames
	sess := s.session
	s.session = nil
	s.channel = nil
	s.state = blerelay.ConnIdle
	s.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	if prev == blerelay.ConnIdle {
		return // second disconnect is a no-op
	}
	s.store.Reset()
	s.log.Infow("device_disconnected", "by", "operator", "was", string(prev))
	s.journal(EventDisconnect, "Disconnected by operator", map[string]any{"was": string(prev)})
}

// Send encodes and transmits one command. Issuing it while not CONNECTED is
// rejected outright; a failed write is reported but leaves the link up, since
// one lost frame does not imply a dead session.
func (s *SessionService) Send(ctx context.Context, cmd blerelay.Command) error {
	s.mu.Lock()
	if s.state != blerelay.ConnConnected {
		s.mu.Unlock()
		s.ring.Append(time.Now(), fmt.Sprintf("rejected %s: link not connected", cmd.Kind))
		return ErrNotConnected
	}
	ch := s.channel
	s.mu.Unlock()

	s.resolveLevel(&cmd)

	data, err := s.codec.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Kind, err)
	}
	if err := ch.Write(ctx, data); err != nil {
		s.ring.Append(time.Now(), fmt.Sprintf("write failed for %s: %v", cmd.Kind, err))
		s.log.Errorw("command_write_failed", "kind", string(cmd.Kind), "err", err)
		s.journal(EventError, "Command write failed", map[string]any{"kind": string(cmd.Kind), "err": err.Error()})
		return fmt.Errorf("send %s: %w", cmd.Kind, err)
	}

	s.log.Infow("command_sent", "kind", string(cmd.Kind))
	s.journal(EventCommand, "Command sent: "+string(cmd.Kind), map[string]any{
		"kind": string(cmd.Kind), "frame": string(data),
	})
	return nil
}

// resolveLevel fills the absolute relay/arm level for toggle commands from
// the current snapshot, for profiles whose wire carries a level not a flip.
func (s *SessionService) resolveLevel(cmd *blerelay.Command) {
	if cmd.Level != nil {
		return
	}
	snap := s.store.Snapshot()
	switch cmd.Kind {
	case blerelay.CmdToggleRelay:
		lvl := !snap.Relay
		cmd.Level = &lvl
	case blerelay.CmdToggleArm:
		lvl := snap.Mode != blerelay.ModeArmed
		cmd.Level = &lvl
	}
}

// handleFrame is the single inbound consumer: decode synchronously, merge into
// the store, done. It never starts an asynchronous wait. Frames from a
// superseded session generation are dropped.
func (s *SessionService) handleFrame(gen uint64, data []byte) {
	now := time.Now()
	s.mu.Lock()
	stale := s.attempt != gen
	s.mu.Unlock()
	if stale {
		return
	}

	u, err := s.codec.DecodeNotification(data)
	if err != nil {
		// Exactly one diagnostic entry per malformed frame; store untouched.
		s.ring.Append(now, fmt.Sprintf("dropped malformed frame %q: %v", truncate(data, 64), err))
		s.log.Infow("notification_decode_failed", "frame", truncate(data, 64), "err", err)
		return
	}

	prev := s.store.Snapshot()
	cur := s.store.Apply(u, now)

	if prev.Mode == blerelay.ModeArmed && cur.Mode == blerelay.ModeOn {
		s.log.Infow("alarm_fired", "alarm_h", cur.AlarmHour, "alarm_m", cur.AlarmMinute)
		s.journal(EventAlarm, "Alarm fired; relay engaged", map[string]any{
			"alarm_h": cur.AlarmHour, "alarm_m": cur.AlarmMinute,
		})
	}
}

// handleRemoteDisconnect reacts to the transport's asynchronous disconnect
// signal. Idempotent; a signal for a superseded generation is a no-op, which
// also makes a disconnect racing a connect resolve to IDLE.
func (s *SessionService) handleRemoteDisconnect(gen uint64) {
	s.mu.Lock()
	if s.attempt != gen {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.attempt++
	sess := s.session
	s.session = nil
	s.channel = nil
	s.state = blerelay.ConnIdle
	s.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	s.store.Reset()
	s.ring.Append(time.Now(), "link dropped by device")
	s.log.Infow("device_disconnected", "by", "device", "was", string(prev))
	s.journal(EventDisconnect, "Link dropped by device", map[string]any{"was": string(prev)})
}

// failHandshake aborts a connect attempt: back to IDLE (unless a disconnect
// already got there), one diagnostic entry, one journal entry, and an error
// wrapping the descriptive reason.
func (s *SessionService) failHandshake(gen uint64, sess ble.Session, reason, cause error) error {
	if sess != nil {
		_ = sess.Close()
	}
	s.mu.Lock()
	if s.attempt == gen && s.state == blerelay.ConnConnecting {
		s.state = blerelay.ConnIdle
	}
	s.mu.Unlock()

	s.ring.Append(time.Now(), fmt.Sprintf("connect failed: %s", reason))
	s.log.Errorw("connect_failed", "reason", reason.Error(), "err", cause)
	s.journal(EventError, "Connect failed: "+reason.Error(), map[string]any{"cause": cause.Error()})
	return fmt.Errorf("%w: %v", reason, cause)
}

// journal appends best-effort; a failed insert is logged, never propagated
// into the link lifecycle.
func (s *SessionService) journal(typ, desc string, meta map[string]any) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := blerelay.SessionEvent{Type: typ, Description: desc, Metadata: meta}
	if err := s.events.Append(ctx, ev); err != nil {
		s.log.Errorw("journal_append_failed", "type", typ, "err", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
