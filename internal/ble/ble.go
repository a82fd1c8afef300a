// Package ble defines the transport contract this service consumes from a
// platform BLE client. A real radio backend lives outside this repository;
// internal/sim provides the in-tree implementation used for demonstration
// and tests. Payloads on the command channel are raw UTF-8 text in whichever
// wire profile both ends were deployed with.
package ble

import "context"

// GATT identifiers shared with the appliance firmware; fixed at build time,
// never negotiated on the link.
const (
	ServiceUUID        = "9c5633b1-4fa4-4b5c-9e02-2f814cc0c4f1"
	CharacteristicUUID = "9c5633b2-4fa4-4b5c-9e02-2f814cc0c4f1"
)

// Provider hands out links to advertising devices. RequestLink may suspend
// for an unbounded time waiting on operator device selection.
type Provider interface {
	RequestLink(ctx context.Context, serviceID string) (Link, error)
}

// Link is a selected but not yet connected device.
type Link interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is an established connection. OnDisconnected may fire at any time,
// including while the caller is still resolving the command channel.
type Session interface {
	Service(ctx context.Context, serviceID string) (RemoteService, error)
	OnDisconnected(fn func())
	Close() error
}

// RemoteService is a resolved GATT service.
type RemoteService interface {
	Characteristic(ctx context.Context, charID string) (Channel, error)
}

// Channel is the single command/notification characteristic. Subscribe must
// succeed before any Write so that no command is sent before its effect can
// be observed; onFrame is invoked serially in arrival order.
type Channel interface {
	Subscribe(ctx context.Context, onFrame func(data []byte)) error
	Write(ctx context.Context, data []byte) error
}
