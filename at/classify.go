package at

import (
	"bytes"
	"strconv"
)

// terminal lists the terminal responses in match order. Matching is by
// prefix, so more specific tokens must not be shadowed by earlier ones.
var terminal = []struct {
	prefix string
	event  Event
}{
	{OK, EventOK},
	{ERROR, EventError},
	{TimeOut, EventError},
	{Download, EventDownload},
	{SendOK, EventSendOK},
	{ShutOK, EventOK},
	{CmeError, EventCMEError},
	{CmsError, EventCMSError},
	{PowerDown, EventPowerDown},
}

// Classify returns the terminal event a line stands for, or EventNone if
// the line is an intermediate response or URC.
func Classify(line []byte) Event {
	for _, t := range terminal {
		if bytes.HasPrefix(line, []byte(t.prefix)) {
			return t.event
		}
	}
	return EventNone
}

// ErrorText extracts the explanation of a CME/CMS error line in the side
// buffer layout: the text after the prefix followed by a newline, clipped to
// fit ErrorTextSize.
func ErrorText(line []byte) string {
	if len(line) < errorPrefix {
		return ""
	}
	text := line[errorPrefix:]
	if len(text)+1 > ErrorTextSize-1 {
		text = text[:ErrorTextSize-3]
	}
	return string(text) + "\n"
}

// IsDataAvailable reports a "+CADATAIND:" socket notification.
func IsDataAvailable(line []byte) bool {
	return bytes.HasPrefix(line, []byte(UrcDataAvailable))
}

// IsNoData reports a "+CARECV: 0" receive reply.
func IsNoData(line []byte) bool {
	return bytes.HasPrefix(line, []byte(UrcNoData))
}

// IsSocketClosed reports one of the exact socket-closed notifications.
func IsSocketClosed(line []byte) bool {
	s := string(line)
	return s == UrcClosed || s == UrcPDP || s == UrcSocketState
}

// RecvLength parses the byte count announced by a "+CARECV: <n>," header.
// The line must end at the comma. ok is false for any other line.
func RecvLength(line []byte) (n int, ok bool) {
	if !bytes.HasPrefix(line, []byte(UrcRecv)) {
		return 0, false
	}
	digits := line[len(UrcRecv):]
	if i := bytes.IndexByte(digits, Comma); i >= 0 {
		digits = digits[:i]
	}
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, true
	}
	n, err := strconv.Atoi(string(digits[:end]))
	if err != nil {
		return 0, true
	}
	return n, true
}
