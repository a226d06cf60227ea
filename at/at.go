package at

const (
	// Control bytes
	CR     byte = '\r'
	LF     byte = '\n'
	Prompt byte = '>'
	CtrlZ  byte = 0x1A
	Comma  byte = ','

	// Terminal responses
	OK          = "OK"
	ERROR       = "ERROR"
	TimeOut     = "TimeOut"
	Download    = "DOWNLOAD"
	SendOK      = "SEND OK"
	ShutOK      = "SHUT OK"
	CmeError    = "+CME ERROR: "
	CmsError    = "+CMS ERROR: "
	PowerDown   = "NORMAL POWER DOWN"
	errorPrefix = len(CmeError)

	// Socket URCs handled inside the parser
	UrcDataAvailable = "+CADATAIND:"
	UrcRecv          = "+CARECV: "
	UrcNoData        = "+CARECV: 0"
	UrcClosed        = "CLOSED"
	UrcPDP           = "+PDP"
	UrcSocketState   = "+CASTATE: 0,0"
)

// LineSize is the capacity of each half of the receive double buffer.
const LineSize = 256

// ErrorTextSize is the capacity of the CME/CMS side buffer.
const ErrorTextSize = 32

// CmdType tags what kind of reply framing the parser should expect next.
type CmdType int

const (
	CmdNone CmdType = iota
	CmdAT
	CmdSMSHeader
	CmdSMSBody
	CmdHTTPData
	CmdIPHeader
	CmdIPData
	CmdFSHeader
	CmdFSData
)

func (c CmdType) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdAT:
		return "at"
	case CmdSMSHeader:
		return "sms-header"
	case CmdSMSBody:
		return "sms-body"
	case CmdHTTPData:
		return "http-data"
	case CmdIPHeader:
		return "ip-header"
	case CmdIPData:
		return "ip-data"
	case CmdFSHeader:
		return "fs-header"
	case CmdFSData:
		return "fs-data"
	}
	return "unknown"
}

// expectsPrompt reports whether a '>' byte completes this command.
func (c CmdType) expectsPrompt() bool {
	return c == CmdSMSHeader || c == CmdIPHeader || c == CmdFSHeader
}

// echoed reports whether the modem echoes this kind of payload as a text
// line. Raw IP payload echo is handled by ExpectBinaryEcho.
func (c CmdType) echoed() bool {
	return c != CmdHTTPData && c != CmdFSData && c != CmdIPData
}

// Event is a serial event emitted by the Parser.
type Event int

const (
	EventNone Event = iota
	EventOK
	EventShutOK
	EventEcho
	EventTimeout
	EventError
	EventCMEError
	EventCMSError
	EventMsg
	EventURC
	EventPrompt
	EventPowerDown
	EventBreak
	EventOverflow
	EventNoise
	EventDownload
	EventBinMsg
	EventUnlock
)

// EventSendOK is reported for "SEND OK" and is indistinguishable from OK.
const EventSendOK = EventOK

func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventOK:
		return "OK"
	case EventShutOK:
		return "SHUT OK"
	case EventEcho:
		return "ECHO"
	case EventTimeout:
		return "TIMEOUT"
	case EventError:
		return "ERROR"
	case EventCMEError:
		return "CME ERROR"
	case EventCMSError:
		return "CMS ERROR"
	case EventMsg:
		return "MSG"
	case EventURC:
		return "URC"
	case EventPrompt:
		return "PROMPT"
	case EventPowerDown:
		return "POWER DOWN"
	case EventBreak:
		return "BREAK"
	case EventOverflow:
		return "OVERFLOW"
	case EventNoise:
		return "NOISE"
	case EventDownload:
		return "DOWNLOAD"
	case EventBinMsg:
		return "BIN MSG"
	case EventUnlock:
		return "UNLOCK"
	}
	return "UNKNOWN"
}

// Terminal reports whether e completes an outstanding command.
func (e Event) Terminal() bool {
	switch e {
	case EventOK, EventShutOK, EventTimeout, EventError, EventCMEError,
		EventCMSError, EventPowerDown, EventDownload:
		return true
	}
	return false
}

// TransportError reports whether e signals a line-level fault.
func (e Event) TransportError() bool {
	return e == EventBreak || e == EventOverflow || e == EventNoise
}
