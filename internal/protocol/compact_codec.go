package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"blerelay"
)

// CompactCodec is the delimited-string profile used by firmware builds with a
// minimal parser. Commands are short prefixed tokens; the single notification
// frame "S:<mode>,<relay>,<HH>,<MM>" carries all four fields and replaces
// mode/relay/alarm wholesale. The device clock is not on this wire, so the
// resulting Update asks for a local receipt-time approximation.
type CompactCodec struct{}

func (CompactCodec) Name() string { return VariantCompact }

func (CompactCodec) EncodeCommand(c blerelay.Command) ([]byte, error) {
	switch c.Kind {
	case blerelay.CmdToggleRelay:
		// The wire has no toggle token; R: carries the desired level, which
		// the sender resolves against its snapshot before encoding.
		if c.Level == nil {
			return nil, fmt.Errorf("%w: toggle_relay needs a resolved level", ErrUnknownCommand)
		}
		return []byte("R:" + levelToken(*c.Level)), nil
	case blerelay.CmdToggleArm:
		if c.Level == nil {
			return nil, fmt.Errorf("%w: toggle_arm needs a resolved level", ErrUnknownCommand)
		}
		return []byte("M:" + levelToken(*c.Level)), nil
	case blerelay.CmdSyncTime:
		return []byte("T:" + strconv.FormatInt(c.Timestamp, 10)), nil
	case blerelay.CmdSetAlarm:
		if err := validAlarm(c.Hour, c.Minute); err != nil {
			return nil, err
		}
		return fmt.Appendf(nil, "A:%02d:%02d", c.Hour, c.Minute), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
}

func (CompactCodec) DecodeCommand(data []byte) (blerelay.Command, error) {
	s := string(data)
	switch {
	case s == "R:0" || s == "R:1":
		lvl := s == "R:1"
		return blerelay.Command{Kind: blerelay.CmdToggleRelay, Level: &lvl}, nil
	case s == "M:0" || s == "M:1":
		lvl := s == "M:1"
		return blerelay.Command{Kind: blerelay.CmdToggleArm, Level: &lvl}, nil
	case strings.HasPrefix(s, "T:"):
		ts, err := strconv.ParseInt(s[2:], 10, 64)
		if err != nil {
			return blerelay.Command{}, fmt.Errorf("%w: %q", ErrMalformedFrame, s)
		}
		return blerelay.Command{Kind: blerelay.CmdSyncTime, Timestamp: ts}, nil
	case strings.HasPrefix(s, "A:"):
		parts := strings.Split(s[2:], ":")
		if len(parts) != 2 {
			return blerelay.Command{}, fmt.Errorf("%w: %q", ErrMalformedFrame, s)
		}
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return blerelay.Command{}, fmt.Errorf("%w: %q", ErrMalformedFrame, s)
		}
		if err := validAlarm(h, m); err != nil {
			return blerelay.Command{}, err
		}
		return blerelay.Command{Kind: blerelay.CmdSetAlarm, Hour: h, Minute: m}, nil
	default:
		return blerelay.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// DecodeNotification parses "S:<mode 0|1|2>,<relay>,<HH>,<MM>". All four
// fields are mandatory; relay is on only for the literal "1".
func (CompactCodec) DecodeNotification(data []byte) (Update, error) {
	s := string(data)
	if !strings.HasPrefix(s, "S:") {
		return Update{}, fmt.Errorf("%w: %q", ErrMalformedFrame, s)
	}
	parts := strings.Split(s[2:], ",")
	if len(parts) != 4 {
		return Update{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedFrame, len(parts))
	}
	mode, err := modeFromCode(strings.TrimSpace(parts[0]))
	if err != nil {
		return Update{}, err
	}
	relay := strings.TrimSpace(parts[1]) == "1"
	h, err1 := strconv.Atoi(strings.TrimSpace(parts[2]))
	m, err2 := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err1 != nil || err2 != nil {
		return Update{}, fmt.Errorf("%w: %q", ErrMalformedFrame, s)
	}
	if err := validAlarm(h, m); err != nil {
		return Update{}, err
	}
	return Update{
		Mode:             &mode,
		Relay:            &relay,
		AlarmHour:        &h,
		AlarmMinute:      &m,
		Replace:          true,
		ClockFromReceipt: true,
	}, nil
}

func (CompactCodec) EncodeNotification(st blerelay.DeviceSnapshot) ([]byte, error) {
	relay := "0"
	if st.Relay {
		relay = "1"
	}
	code, err := modeToCode(st.Mode)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "S:%s,%s,%02d,%02d", code, relay, st.AlarmHour, st.AlarmMinute), nil
}

func levelToken(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func modeFromCode(code string) (blerelay.Mode, error) {
	switch code {
	case "0":
		return blerelay.ModeIdle, nil
	case "1":
		return blerelay.ModeArmed, nil
	case "2":
		return blerelay.ModeOn, nil
	default:
		return "", fmt.Errorf("%w: mode code %q", ErrFieldRange, code)
	}
}

func modeToCode(m blerelay.Mode) (string, error) {
	switch m {
	case blerelay.ModeIdle:
		return "0", nil
	case blerelay.ModeArmed:
		return "1", nil
	case blerelay.ModeOn:
		return "2", nil
	default:
		return "", fmt.Errorf("%w: mode %q", ErrFieldRange, m)
	}
}
