package protocol

import (
	"errors"
	"fmt"

	"blerelay"
)

// Profile names accepted in configuration.
const (
	VariantJSON    = "json"
	VariantCompact = "compact"
)

// Shared decode errors. Callers treat any decode failure as diagnostic: log
// one entry, drop the frame, leave the snapshot untouched.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownCommand = errors.New("unknown command")
	ErrFieldRange     = errors.New("field out of range")
)

// Update is a decoded notification. Pointer fields are nil when the frame did
// not carry them; Replace marks the compact profile's wholesale overwrite of
// mode/relay/alarm. ClockFromReceipt asks the store to stamp the device clock
// from the local receipt time because the profile does not carry it on the
// wire (a less accurate countdown basis than an appliance-reported clock).
type Update struct {
	Mode             *blerelay.Mode
	Relay            *bool
	AlarmHour        *int
	AlarmMinute      *int
	DeviceClock      *int64
	Replace          bool
	ClockFromReceipt bool
}

// Codec is one wire profile. The two implementations share a command
// vocabulary but are not interoperable; the profile is fixed at configuration
// time for both ends of the link. The appliance-side methods exist so the
// simulated appliance speaks bit-identical frames to real firmware.
//
// Encoding never fails for well-formed commands: there is no I/O here, a
// transmit failure belongs to the transport.
type Codec interface {
	Name() string

	// Client side.
	EncodeCommand(c blerelay.Command) ([]byte, error)
	DecodeNotification(data []byte) (Update, error)

	// Appliance side.
	DecodeCommand(data []byte) (blerelay.Command, error)
	EncodeNotification(s blerelay.DeviceSnapshot) ([]byte, error)
}

// ForVariant returns the codec for a configured profile name.
func ForVariant(name string) (Codec, error) {
	switch name {
	case VariantJSON:
		return JSONCodec{}, nil
	case VariantCompact:
		return CompactCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown protocol variant %q", name)
	}
}

// DefaultRingCapacity is the diagnostic ring size a profile gets when the
// operator does not configure one.
func DefaultRingCapacity(variant string) int {
	if variant == VariantCompact {
		return 20
	}
	return 50
}

func validAlarm(h, m int) error {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%w: alarm %02d:%02d", ErrFieldRange, h, m)
	}
	return nil
}
