package modem

import "fmt"

// Status is the result code of a driver operation.
type Status int

const (
	StatusOK            Status = 0
	StatusWaiting       Status = -1
	StatusError         Status = -2
	StatusTimeout       Status = -3
	StatusNoMatch       Status = -4
	StatusNoHandlerResp Status = -5
	StatusUnknownRSSI   Status = -6
	StatusSearching     Status = -7
	StatusDenied        Status = -8
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWaiting:
		return "WAITING"
	case StatusError:
		return "ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusNoMatch:
		return "NOMATCH"
	case StatusNoHandlerResp:
		return "NOHRESP"
	case StatusUnknownRSSI:
		return "UNKNOWN_RSSI"
	case StatusSearching:
		return "SEARCHING"
	case StatusDenied:
		return "DENIED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Err converts s into an error wrapping the matching sentinel, or nil for
// StatusOK.
func (s Status) Err() error {
	var base error
	switch s {
	case StatusOK:
		return nil
	case StatusTimeout:
		base = ErrTimeout
	case StatusNoMatch:
		base = ErrNoMatch
	case StatusSearching:
		base = ErrSearching
	case StatusDenied:
		base = ErrDenied
	default:
		base = ErrCommand
	}
	return fmt.Errorf("%w (%s)", base, s)
}

// SocketStatus is the result code of a socket operation.
type SocketStatus int

const (
	SocketOK       SocketStatus = 0
	SocketWaiting  SocketStatus = -1
	SocketClosed   SocketStatus = -2
	SocketTimeout  SocketStatus = -3
	SocketNoData   SocketStatus = -4
	SocketOverflow SocketStatus = -5
)

func (s SocketStatus) String() string {
	switch s {
	case SocketOK:
		return "OK"
	case SocketWaiting:
		return "WAITING"
	case SocketClosed:
		return "CLOSED"
	case SocketTimeout:
		return "TIMEOUT"
	case SocketNoData:
		return "NO_DATA"
	case SocketOverflow:
		return "OVERFLOW"
	}
	return fmt.Sprintf("SocketStatus(%d)", int(s))
}

// Err converts s into an error wrapping the matching sentinel, or nil for
// SocketOK.
func (s SocketStatus) Err() error {
	switch s {
	case SocketOK:
		return nil
	case SocketClosed:
		return ErrClosed
	case SocketTimeout:
		return ErrTimeout
	case SocketNoData:
		return ErrNoData
	case SocketOverflow:
		return ErrOverflow
	}
	return fmt.Errorf("%w (%s)", ErrCommand, s)
}

// IPState is the bearer and socket state tracked by the session.
type IPState int

const (
	IPUnknown    IPState = -1
	IPInitial    IPState = 0
	IPStart      IPState = 1
	IPConfig     IPState = 2
	IPGPRSAct    IPState = 3
	IPStatus     IPState = 4
	IPConnecting IPState = 5
	IPConnected  IPState = 6
	IPClosing    IPState = 7
	IPClosed     IPState = 8
	IPError      IPState = 9
	IPPDPDeact   IPState = 10
)

func (s IPState) String() string {
	switch s {
	case IPUnknown:
		return "UNKNOWN"
	case IPInitial:
		return "INITIAL"
	case IPStart:
		return "START"
	case IPConfig:
		return "CONFIG"
	case IPGPRSAct:
		return "GPRSACT"
	case IPStatus:
		return "STATUS"
	case IPConnecting:
		return "CONNECTING"
	case IPConnected:
		return "CONNECTED"
	case IPClosing:
		return "CLOSING"
	case IPClosed:
		return "CLOSED"
	case IPError:
		return "ERROR"
	case IPPDPDeact:
		return "PDP_DEACT"
	}
	return fmt.Sprintf("IPState(%d)", int(s))
}

// SIM selects the SIM slot used by the modem.
type SIM int

const (
	SIMExternal SIM = 1
	SIMInternal SIM = 2
)
