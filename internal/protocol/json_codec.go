package protocol

import (
	"encoding/json"
	"fmt"

	"blerelay"
)

// JSONCodec is the verbose self-describing profile. Notifications may carry
// any subset of the state fields; absent fields merge as "unchanged".
type JSONCodec struct{}

func (JSONCodec) Name() string { return VariantJSON }

type jsonCommand struct {
	Cmd string `json:"cmd"`
	H   *int   `json:"h,omitempty"`
	M   *int   `json:"m,omitempty"`
	Ts  *int64 `json:"ts,omitempty"`
}

type jsonNotification struct {
	Mode     *string `json:"mode,omitempty"`
	Relay    *bool   `json:"relay,omitempty"`
	AlarmH   *int    `json:"alarmH,omitempty"`
	AlarmM   *int    `json:"alarmM,omitempty"`
	DeviceTs *int64  `json:"deviceTs,omitempty"`
}

func (JSONCodec) EncodeCommand(c blerelay.Command) ([]byte, error) {
	var out jsonCommand
	switch c.Kind {
	case blerelay.CmdSyncTime:
		ts := c.Timestamp
		out = jsonCommand{Cmd: "sync_time", Ts: &ts}
	case blerelay.CmdSetAlarm:
		if err := validAlarm(c.Hour, c.Minute); err != nil {
			return nil, err
		}
		h, m := c.Hour, c.Minute
		out = jsonCommand{Cmd: "set_alarm", H: &h, M: &m}
	case blerelay.CmdToggleArm:
		out = jsonCommand{Cmd: "toggle_arm"}
	case blerelay.CmdToggleRelay:
		out = jsonCommand{Cmd: "toggle_relay"}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
	return json.Marshal(out)
}

func (JSONCodec) DecodeCommand(data []byte) (blerelay.Command, error) {
	var in jsonCommand
	if err := json.Unmarshal(data, &in); err != nil {
		return blerelay.Command{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch in.Cmd {
	case "sync_time":
		if in.Ts == nil {
			return blerelay.Command{}, fmt.Errorf("%w: sync_time without ts", ErrMalformedFrame)
		}
		return blerelay.Command{Kind: blerelay.CmdSyncTime, Timestamp: *in.Ts}, nil
	case "set_alarm":
		if in.H == nil || in.M == nil {
			return blerelay.Command{}, fmt.Errorf("%w: set_alarm without h/m", ErrMalformedFrame)
		}
		if err := validAlarm(*in.H, *in.M); err != nil {
			return blerelay.Command{}, err
		}
		return blerelay.Command{Kind: blerelay.CmdSetAlarm, Hour: *in.H, Minute: *in.M}, nil
	case "toggle_arm":
		return blerelay.Command{Kind: blerelay.CmdToggleArm}, nil
	case "toggle_relay":
		return blerelay.Command{Kind: blerelay.CmdToggleRelay}, nil
	default:
		return blerelay.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, in.Cmd)
	}
}

// DecodeNotification parses a verbose frame into a partial-merge update.
// Unknown fields are ignored; known fields are validated before any of them
// can reach the store.
func (JSONCodec) DecodeNotification(data []byte) (Update, error) {
	var in jsonNotification
	if err := json.Unmarshal(data, &in); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	var u Update
	if in.Mode != nil {
		m, err := modeFromWire(*in.Mode)
		if err != nil {
			return Update{}, err
		}
		u.Mode = &m
	}
	u.Relay = in.Relay
	if in.AlarmH != nil {
		if *in.AlarmH < 0 || *in.AlarmH > 23 {
			return Update{}, fmt.Errorf("%w: alarmH=%d", ErrFieldRange, *in.AlarmH)
		}
		u.AlarmHour = in.AlarmH
	}
	if in.AlarmM != nil {
		if *in.AlarmM < 0 || *in.AlarmM > 59 {
			return Update{}, fmt.Errorf("%w: alarmM=%d", ErrFieldRange, *in.AlarmM)
		}
		u.AlarmMinute = in.AlarmM
	}
	u.DeviceClock = in.DeviceTs
	return u, nil
}

func (JSONCodec) EncodeNotification(s blerelay.DeviceSnapshot) ([]byte, error) {
	mode := string(s.Mode)
	h, m := s.AlarmHour, s.AlarmMinute
	relay := s.Relay
	ts := s.DeviceClock
	return json.Marshal(jsonNotification{
		Mode:     &mode,
		Relay:    &relay,
		AlarmH:   &h,
		AlarmM:   &m,
		DeviceTs: &ts,
	})
}

// EncodeClockReport builds the verbose profile's partial heartbeat frame
// carrying only the device clock. The compact profile has no equivalent.
func EncodeClockReport(clock int64) ([]byte, error) {
	return json.Marshal(jsonNotification{DeviceTs: &clock})
}

func modeFromWire(s string) (blerelay.Mode, error) {
	switch blerelay.Mode(s) {
	case blerelay.ModeIdle, blerelay.ModeArmed, blerelay.ModeOn:
		return blerelay.Mode(s), nil
	default:
		return "", fmt.Errorf("%w: mode=%q", ErrFieldRange, s)
	}
}
