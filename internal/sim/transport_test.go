package sim

import (
	"context"
	"testing"
	"time"

	"blerelay/internal/ble"
	"blerelay/internal/protocol"
)

func newTestTransport(t *testing.T) (*Transport, *Appliance) {
	t.Helper()
	codec, err := protocol.ForVariant(protocol.VariantJSON)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	a := NewAppliance(codec, 0, nil)
	// long tick keeps the background runner quiet during tests
	return NewTransport(a, time.Hour), a
}

func dialSession(t *testing.T, tr *Transport) *session {
	t.Helper()
	ctx := context.Background()
	lnk, err := tr.RequestLink(ctx, ble.ServiceUUID)
	if err != nil {
		t.Fatalf("RequestLink: %v", err)
	}
	sess, err := lnk.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return sess.(*session)
}

func TestTransport_RejectsUnknownUUIDs(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	if _, err := tr.RequestLink(ctx, "0000-bogus"); err == nil {
		t.Fatal("expected error for unknown service uuid")
	}

	sess := dialSession(t, tr)
	defer sess.Close()

	if _, err := sess.Service(ctx, "0000-bogus"); err == nil {
		t.Fatal("expected error for unknown service on session")
	}
	svc, err := sess.Service(ctx, ble.ServiceUUID)
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if _, err := svc.Characteristic(ctx, "0000-bogus"); err == nil {
		t.Fatal("expected error for unknown characteristic")
	}
}

func TestTransport_CloseDoesNotFireCallback(t *testing.T) {
	tr, _ := newTestTransport(t)
	sess := dialSession(t, tr)

	fired := 0
	sess.OnDisconnected(func() { fired++ })

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fired != 0 {
		t.Fatalf("client-side close must not fire disconnect callback, fired %d times", fired)
	}
}

func TestTransport_DropFiresCallbackOnce(t *testing.T) {
	tr, _ := newTestTransport(t)
	sess := dialSession(t, tr)

	fired := 0
	sess.OnDisconnected(func() { fired++ })

	sess.Drop()
	sess.Drop()
	if fired != 1 {
		t.Fatalf("disconnect callback fired %d times, want 1", fired)
	}
}

func TestTransport_ClosedSessionRejectsIO(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()
	sess := dialSession(t, tr)

	svc, err := sess.Service(ctx, ble.ServiceUUID)
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	ch, err := svc.Characteristic(ctx, ble.CharacteristicUUID)
	if err != nil {
		t.Fatalf("Characteristic: %v", err)
	}

	_ = sess.Close()

	if err := ch.Subscribe(ctx, func([]byte) {}); err == nil {
		t.Fatal("Subscribe after close must fail")
	}
	if err := ch.Write(ctx, []byte(`{"cmd":"toggle_relay"}`)); err == nil {
		t.Fatal("Write after close must fail")
	}
}
