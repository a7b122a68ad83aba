package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// The wire carries two message classes over raw datagrams with no type tag:
// short ASCII control tokens and raw little-endian PCM payload. A datagram is
// control only when it is shorter than ControlMaxLen AND its bytes match a
// known token; everything else is payload.
//
// A payload datagram shorter than ControlMaxLen whose bytes happen to spell a
// token would be misclassified. Deployed senders always emit payload chunks
// of at least several hundred bytes, so the collision does not occur in
// practice, but that is a property of the senders rather than a wire
// guarantee.
const ControlMaxLen = 11

// Token identifies a control command.
type Token uint8

const (
	TokenUnknown Token = iota
	TokenStart         // begin a stream
	TokenStop          // end a capture, optionally after a duration
	TokenEnd           // explicit end of a playback stream
	TokenBeep          // connectivity probe, device plays a short tone
	TokenTest          // heartbeat, acknowledged and ignored
)

const stopPrefix = "STOP:"

// Control is a parsed control datagram.
type Control struct {
	Token       Token
	DurationMS  uint32 // only meaningful when HasDuration is set
	HasDuration bool   // true for STOP:<ms>
}

// Classify splits a received datagram into control or payload. It returns
// the parsed control and true, or the zero Control and false for payload.
func Classify(data []byte) (Control, bool) {
	if len(data) == 0 || len(data) >= ControlMaxLen {
		return Control{}, false
	}

	ctrl, err := ParseControl(string(data))
	if err != nil {
		return Control{}, false
	}

	return ctrl, true
}

// ParseControl parses a control token string.
func ParseControl(s string) (Control, error) {
	switch s {
	case "START":
		return Control{Token: TokenStart}, nil
	case "STOP":
		return Control{Token: TokenStop}, nil
	case "END":
		return Control{Token: TokenEnd}, nil
	case "BEEP":
		return Control{Token: TokenBeep}, nil
	case "TEST":
		return Control{Token: TokenTest}, nil
	}

	if strings.HasPrefix(s, stopPrefix) {
		ms, err := strconv.ParseUint(s[len(stopPrefix):], 10, 32)
		if err != nil {
			return Control{}, fmt.Errorf("invalid stop duration %q: %w", s, err)
		}
		return Control{Token: TokenStop, DurationMS: uint32(ms), HasDuration: true}, nil
	}

	return Control{}, fmt.Errorf("unknown control token %q", s)
}

// Encode renders the control back to its exact wire bytes.
func (c Control) Encode() []byte {
	switch c.Token {
	case TokenStart:
		return []byte("START")
	case TokenStop:
		if c.HasDuration {
			return []byte(stopPrefix + strconv.FormatUint(uint64(c.DurationMS), 10))
		}
		return []byte("STOP")
	case TokenEnd:
		return []byte("END")
	case TokenBeep:
		return []byte("BEEP")
	case TokenTest:
		return []byte("TEST")
	}
	return nil
}

// String returns a human-readable representation of the control.
func (c Control) String() string {
	switch c.Token {
	case TokenStart:
		return "START"
	case TokenStop:
		if c.HasDuration {
			return fmt.Sprintf("STOP:%dms", c.DurationMS)
		}
		return "STOP"
	case TokenEnd:
		return "END"
	case TokenBeep:
		return "BEEP"
	case TokenTest:
		return "TEST"
	}
	return fmt.Sprintf("Unknown(%d)", c.Token)
}
