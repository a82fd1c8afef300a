package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blerelay"
	"blerelay/internal/ble"
	"blerelay/internal/device"
	"blerelay/internal/diag"
	"blerelay/internal/logger"
	"blerelay/internal/protocol"
)

// ---- Transport stub ----

// stubTransport scripts every handshake step so each failure reason and
// ordering race can be exercised without a radio.
type stubTransport struct {
	requestLinkErr error
	connectErr     error
	serviceErr     error
	charErr        error
	subscribeErr   error
	writeErr       error

	// connectGate, when set, blocks Connect until released (for race tests).
	connectGate chan struct{}

	mu           sync.Mutex
	onFrame      func([]byte)
	onDisconnect func()
	closed       int
	written      [][]byte
}

func (s *stubTransport) RequestLink(ctx context.Context, serviceID string) (ble.Link, error) {
	if s.requestLinkErr != nil {
		return nil, s.requestLinkErr
	}
	return stubLink{t: s}, nil
}

type stubLink struct{ t *stubTransport }

func (l stubLink) Connect(ctx context.Context) (ble.Session, error) {
	if l.t.connectGate != nil {
		<-l.t.connectGate
	}
	if l.t.connectErr != nil {
		return nil, l.t.connectErr
	}
	return stubSession{t: l.t}, nil
}

type stubSession struct{ t *stubTransport }

func (s stubSession) Service(ctx context.Context, serviceID string) (ble.RemoteService, error) {
	if s.t.serviceErr != nil {
		return nil, s.t.serviceErr
	}
	return stubService{t: s.t}, nil
}

func (s stubSession) OnDisconnected(fn func()) {
	s.t.mu.Lock()
	s.t.onDisconnect = fn
	s.t.mu.Unlock()
}

func (s stubSession) Close() error {
	s.t.mu.Lock()
	s.t.closed++
	s.t.mu.Unlock()
	return nil
}

type stubService struct{ t *stubTransport }

func (s stubService) Characteristic(ctx context.Context, charID string) (ble.Channel, error) {
	if s.t.charErr != nil {
		return nil, s.t.charErr
	}
	return stubChannel{t: s.t}, nil
}

type stubChannel struct{ t *stubTransport }

func (c stubChannel) Subscribe(ctx context.Context, onFrame func(data []byte)) error {
	if c.t.subscribeErr != nil {
		return c.t.subscribeErr
	}
	c.t.mu.Lock()
	c.t.onFrame = onFrame
	c.t.mu.Unlock()
	return nil
}

func (c stubChannel) Write(ctx context.Context, data []byte) error {
	if c.t.writeErr != nil {
		return c.t.writeErr
	}
	c.t.mu.Lock()
	c.t.written = append(c.t.written, data)
	c.t.mu.Unlock()
	return nil
}

// deliver pushes a notification frame as the transport would.
func (s *stubTransport) deliver(frame []byte) {
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

// drop fires the asynchronous disconnect signal.
func (s *stubTransport) drop() {
	s.mu.Lock()
	fn := s.onDisconnect
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type eventRepoStub struct {
	mu      sync.Mutex
	appends []blerelay.SessionEvent
}

func (e *eventRepoStub) Append(ctx context.Context, ev blerelay.SessionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appends = append(e.appends, ev)
	return nil
}
func (e *eventRepoStub) List(ctx context.Context, from, to time.Time, typ string) ([]blerelay.SessionEvent, error) {
	return nil, nil
}

func newTestSession(t *testing.T, tr *stubTransport) (*SessionService, *device.Store, *diag.Ring) {
	t.Helper()
	store := device.NewStore()
	ring := diag.NewRing(50)
	s := NewSessionService(tr, protocol.JSONCodec{}, store, ring, &eventRepoStub{}, logger.Get(logger.ErrorLevel))
	return s, store, ring
}

// ---- Tests ----

func TestSession_ConnectHappyPath(t *testing.T) {
	tr := &stubTransport{}
	s, _, _ := newTestSession(t, tr)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := s.State(); got != blerelay.ConnConnected {
		t.Fatalf("state = %s, want CONNECTED", got)
	}
}

func TestSession_HandshakeFailureReasons(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*stubTransport)
		want error
	}{
		{"no device chosen", func(tr *stubTransport) { tr.requestLinkErr = errors.New("picker dismissed") }, ErrNoDeviceChosen},
		{"link failed", func(tr *stubTransport) { tr.connectErr = errors.New("timeout") }, ErrLinkFailed},
		{"service not found", func(tr *stubTransport) { tr.serviceErr = errors.New("no such service") }, ErrServiceNotFound},
		{"characteristic not found", func(tr *stubTransport) { tr.charErr = errors.New("no such char") }, ErrCharacteristicNotFound},
		{"subscription failed", func(tr *stubTransport) { tr.subscribeErr = errors.New("cccd write failed") }, ErrSubscriptionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &stubTransport{}
			tc.mod(tr)
			s, _, _ := newTestSession(t, tr)

			err := s.Connect(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if got := s.State(); got != blerelay.ConnIdle {
				t.Fatalf("state = %s, want IDLE after failed handshake", got)
			}
		})
	}
}

func TestSession_DisconnectTwiceIsNoOp(t *testing.T) {
	tr := &stubTransport{}
	s, _, _ := newTestSession(t, tr)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.Disconnect()
	if got := s.State(); got != blerelay.ConnIdle {
		t.Fatalf("state = %s, want IDLE", got)
	}
	s.Disconnect() // must not panic, error, or journal again
	if got := s.State(); got != blerelay.ConnIdle {
		t.Fatalf("state = %s, want IDLE", got)
	}
}

func TestSession_DisconnectDuringConnectingDiscardsLateSuccess(t *testing.T) {
	tr := &stubTransport{connectGate: make(chan struct{})}
	s, _, _ := newTestSession(t, tr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()

	// wait until the attempt reaches CONNECTING
	deadline := time.After(2 * time.Second)
	for s.State() != blerelay.ConnConnecting {
		select {
		case <-deadline:
			t.Fatal("never reached CONNECTING")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	s.Disconnect()
	close(tr.connectGate) // let the in-flight handshake finish late

	err := <-errCh
	if !errors.Is(err, ErrConnectAborted) {
		t.Fatalf("err = %v, want ErrConnectAborted", err)
	}
	if got := s.State(); got != blerelay.ConnIdle {
		t.Fatalf("state = %s, want IDLE; late connect must not resurrect", got)
	}
	tr.mu.Lock()
	closed := tr.closed
	tr.mu.Unlock()
	if closed == 0 {
		t.Fatal("discarded session was never closed")
	}
}

func TestSession_RemoteDisconnectSignal(t *testing.T) {
	tr := &stubTransport{}
	s, _, _ := newTestSession(t, tr)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tr.drop()
	if got := s.State(); got != blerelay.ConnIdle {
		t.Fatalf("state = %s, want IDLE after drop", got)
	}
	tr.drop() // second signal for the same generation is a no-op
	if got := s.State(); got != blerelay.ConnIdle {
		t.Fatalf("state = %s, want IDLE", got)
	}
}

func TestSession_SendWhileNotConnectedRejected(t *testing.T) {
	tr := &stubTransport{}
	s, _, ring := newTestSession(t, tr)

	err := s.Send(context.Background(), blerelay.Command{Kind: blerelay.CmdToggleRelay})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if ring.Len() != 1 {
		t.Fatalf("ring entries = %d, want 1", ring.Len())
	}
}

func TestSession_SendWritesEncodedFrame(t *testing.T) {
	tr := &stubTransport{}
	s, _, _ := newTestSession(t, tr)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := s.Send(context.Background(), blerelay.Command{Kind: blerelay.CmdSetAlarm, Hour: 7, Minute: 30}); err != nil {
		t.Fatalf("send: %v", err)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.written) != 1 {
		t.Fatalf("written = %d frames, want 1", len(tr.written))
	}
}

func TestSession_WriteFailureKeepsConnection(t *testing.T) {
	tr := &stubTransport{}
	s, _, _ := newTestSession(t, tr)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr.writeErr = errors.New("gatt write rejected")
	if err := s.Send(context.Background(), blerelay.Command{Kind: blerelay.CmdToggleRelay}); err == nil {
		t.Fatal("expected send error")
	}
	if got := s.State(); got != blerelay.ConnConnected {
		t.Fatalf("state = %s; one failed write must not tear the link down", got)
	}
}

func TestSession_NotificationMergesIntoStore(t *testing.T) {
	tr := &stubTransport{}
	s, store, _ := newTestSession(t, tr)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr.deliver([]byte(`{"mode":"ARMED","alarmH":7,"alarmM":30,"deviceTs":1767139200}`))
	tr.deliver([]byte(`{"relay":true}`))

	got := store.Snapshot()
	if got.Mode != blerelay.ModeArmed || !got.Relay || got.AlarmHour != 7 || got.DeviceClock != 1767139200 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestSession_MalformedFrameDroppedWithOneDiagnostic(t *testing.T) {
	tr := &stubTransport{}
	s, store, ring := newTestSession(t, tr)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tr.deliver([]byte(`{"relay":true}`))
	before := store.Snapshot()
	n := ring.Len()

	tr.deliver([]byte(`{"relay":tru`))

	if store.Snapshot() != before {
		t.Fatalf("snapshot changed on malformed frame: %+v", store.Snapshot())
	}
	if got := ring.Len() - n; got != 1 {
		t.Fatalf("diagnostic entries = %d, want exactly 1", got)
	}
}

func TestSession_FramesFromStaleSessionDropped(t *testing.T) {
	tr := &stubTransport{}
	s, store, _ := newTestSession(t, tr)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.Disconnect()

	tr.deliver([]byte(`{"relay":true}`)) // late frame from torn-down session
	if store.Snapshot().Relay {
		t.Fatal("stale frame reached the store")
	}
}

func TestSession_ConnectWhileConnectedRejected(t *testing.T) {
	tr := &stubTransport{}
	s, _, _ := newTestSession(t, tr)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}
