package nq

import "fmt"

// SessionID references the communication partner on the other side of the
// boundary.
type SessionID uint32

const (
	// SessionMCP is the control-plane session used to talk to the managing
	// runtime itself (starting and stopping tasks), not to a user session.
	SessionMCP SessionID = 0
	// SessionInvalid is returned in case of an error. It never names a live session.
	SessionInvalid SessionID = 0xFFFFFFFF
)

// Payload carries the additional notification information.
//
// Zero is a plain "data available" signal, a positive value is an exit code
// reported by the task and a negative value is a termination reason reported
// by the runtime.
type Payload int32

// Termination reasons reported by the runtime.
const (
	// PayloadNotify asks the receiver to check the associated data buffer.
	PayloadNotify Payload = 0

	// PayloadInvalidExitCode means the task terminated but its exit code is invalid.
	PayloadInvalidExitCode Payload = -1
	// PayloadSessionClose means the task terminated due to session end, no exit code available.
	PayloadSessionClose Payload = -2
	// PayloadInvalidOperation means the task terminated due to an invalid operation.
	PayloadInvalidOperation Payload = -3
	// PayloadInvalidSID means the session ID is unknown.
	PayloadInvalidSID Payload = -4
	// PayloadSIDNotActive means the session is not active.
	PayloadSIDNotActive Payload = -5
)

// PayloadKind classifies a payload value.
type PayloadKind uint8

const (
	KindSignal PayloadKind = iota
	KindExitCode
	KindTermination
	// KindUnknownTermination is a negative payload outside the known reasons.
	KindUnknownTermination
)

func (k PayloadKind) String() string {
	switch k {
	case KindSignal:
		return "signal"
	case KindExitCode:
		return "exit_code"
	case KindTermination:
		return "termination"
	case KindUnknownTermination:
		return "unknown_termination"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kind classifies p.
func (p Payload) Kind() PayloadKind {
	switch {
	case p == PayloadNotify:
		return KindSignal
	case p > 0:
		return KindExitCode
	case p >= PayloadSIDNotActive:
		return KindTermination
	}
	return KindUnknownTermination
}

// Terminal reports whether the payload ends the session it is addressed to.
func (p Payload) Terminal() bool {
	return p != PayloadNotify
}

func (p Payload) String() string {
	switch p {
	case PayloadNotify:
		return "notify"
	case PayloadInvalidExitCode:
		return "invalid_exit_code"
	case PayloadSessionClose:
		return "session_close"
	case PayloadInvalidOperation:
		return "invalid_operation"
	case PayloadInvalidSID:
		return "invalid_sid"
	case PayloadSIDNotActive:
		return "sid_not_active"
	}
	if p > 0 {
		return fmt.Sprintf("exit(%d)", int32(p))
	}
	return fmt.Sprintf("termination(%d)", int32(p))
}

// Notification is the fixed 8-byte record exchanged through a Queue.
type Notification struct {
	SessionID SessionID
	Payload   Payload
}

func (n Notification) String() string {
	return fmt.Sprintf("session=%d payload=%s", uint32(n.SessionID), n.Payload)
}
