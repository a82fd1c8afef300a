package blerelay

import "time"

// Mode is the appliance operating mode as spelled on the verbose wire.
type Mode string

const (
	ModeIdle  Mode = "IDLE"
	ModeArmed Mode = "ARMED"
	ModeOn    Mode = "ON"
)

// ConnState is the lifecycle state of the device link. Owned by the session
// service; everything else only reads it.
type ConnState string

const (
	ConnIdle       ConnState = "IDLE"
	ConnConnecting ConnState = "CONNECTING"
	ConnConnected  ConnState = "CONNECTED"
)

// DeviceSnapshot is the single authoritative view of appliance state.
// Replaced wholesale or field-merged per accepted notification; readers never
// observe a half-applied merge.
type DeviceSnapshot struct {
	Mode        Mode      `json:"mode"`
	Relay       bool      `json:"relay"`
	AlarmHour   int       `json:"alarm_hour"`
	AlarmMinute int       `json:"alarm_minute"`
	DeviceClock int64     `json:"device_clock"` // appliance-reported epoch seconds; 0 = unknown
	UpdatedAt   time.Time `json:"updated_at"`   // local wall clock at last accepted notification
}

// CommandKind tags the four requests the appliance understands.
type CommandKind string

const (
	CmdSyncTime    CommandKind = "SYNC_TIME"
	CmdSetAlarm    CommandKind = "SET_ALARM"
	CmdToggleArm   CommandKind = "TOGGLE_ARM"
	CmdToggleRelay CommandKind = "TOGGLE_RELAY"
)

// Command is a single outgoing request. It exists only for the duration of one
// encode+transmit; payload fields are meaningful per kind.
//
// Level resolves the toggle kinds for wire profiles that carry an absolute
// relay/arm level instead of a flip. The sender fills it from its current
// snapshot; nil means "flip whatever the appliance holds".
type Command struct {
	Kind      CommandKind `json:"kind"`
	Hour      int         `json:"hour,omitempty"`      // SET_ALARM
	Minute    int         `json:"minute,omitempty"`    // SET_ALARM
	Timestamp int64       `json:"timestamp,omitempty"` // SYNC_TIME, epoch seconds
	Level     *bool       `json:"level,omitempty"`     // TOGGLE_ARM / TOGGLE_RELAY
}

// SessionEvent is a single journal entry.
type SessionEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // CONNECT | DISCONNECT | COMMAND | ERROR | ALARM
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don't expose hash
}
