package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"blerelay/internal/ble"
)

// Transport exposes one simulated appliance through the ble contract.
// Connecting starts the appliance's 1 Hz tick; closing the session stops it,
// so no ticker survives a torn-down link.
type Transport struct {
	appliance *Appliance
	tick      time.Duration
}

var (
	errUnknownService        = errors.New("no advertised device for service")
	errUnknownCharacteristic = errors.New("characteristic not present on service")
)

func NewTransport(a *Appliance, tick time.Duration) *Transport {
	if tick <= 0 {
		tick = time.Second
	}
	return &Transport{appliance: a, tick: tick}
}

func (t *Transport) RequestLink(ctx context.Context, serviceID string) (ble.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if serviceID != ble.ServiceUUID {
		return nil, errUnknownService
	}
	return &link{transport: t}, nil
}

type link struct {
	transport *Transport
}

func (l *link) Connect(ctx context.Context) (ble.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{appliance: l.transport.appliance, cancel: cancel}
	go l.transport.appliance.Run(runCtx, l.transport.tick)
	return s, nil
}

type session struct {
	appliance *Appliance
	cancel    context.CancelFunc

	mu             sync.Mutex
	closed         bool
	onDisconnected func()
}

func (s *session) Service(ctx context.Context, serviceID string) (ble.RemoteService, error) {
	if serviceID != ble.ServiceUUID {
		return nil, errUnknownService
	}
	return &remoteService{session: s}, nil
}

func (s *session) OnDisconnected(fn func()) {
	s.mu.Lock()
	s.onDisconnected = fn
	s.mu.Unlock()
}

// Close tears the session down from the client side: ticker stopped, sink
// detached, no disconnect callback. Idempotent.
func (s *session) Close() error {
	s.teardown()
	return nil
}

// Drop simulates the appliance vanishing (powered off, out of range): same
// teardown, then the asynchronous disconnect callback fires.
func (s *session) Drop() {
	fn := s.teardown()
	if fn != nil {
		fn()
	}
}

func (s *session) teardown() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.appliance.Detach()
	return s.onDisconnected
}

type remoteService struct {
	session *session
}

func (r *remoteService) Characteristic(ctx context.Context, charID string) (ble.Channel, error) {
	if charID != ble.CharacteristicUUID {
		return nil, errUnknownCharacteristic
	}
	return &channel{session: r.session}, nil
}

type channel struct {
	session *session
}

func (c *channel) Subscribe(ctx context.Context, onFrame func(data []byte)) error {
	c.session.mu.Lock()
	closed := c.session.closed
	c.session.mu.Unlock()
	if closed {
		return errors.New("session closed")
	}
	c.session.appliance.Attach(onFrame)
	return nil
}

func (c *channel) Write(ctx context.Context, data []byte) error {
	c.session.mu.Lock()
	closed := c.session.closed
	c.session.mu.Unlock()
	if closed {
		return errors.New("session closed")
	}
	c.session.appliance.HandleFrame(data)
	return nil
}
