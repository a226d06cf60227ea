package at_test

import (
	"testing"

	"i4.energy/across/heracles/at"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected at.Event
	}{
		{"OK", "OK", at.EventOK},
		{"ERROR", "ERROR", at.EventError},
		{"File system timeout", "TimeOut", at.EventError},
		{"Download prompt", "DOWNLOAD", at.EventDownload},
		{"Send OK is OK", "SEND OK", at.EventOK},
		{"Shut OK is OK", "SHUT OK", at.EventOK},
		{"CME error", "+CME ERROR: 16", at.EventCMEError},
		{"CMS error", "+CMS ERROR: 500", at.EventCMSError},
		{"Power down", "NORMAL POWER DOWN", at.EventPowerDown},
		{"Signal quality", "+CSQ: 15,99", at.EventNone},
		{"Registration", "+CREG: 0,1", at.EventNone},
		{"CME prefix without text", "+CME ERROR:", at.EventNone},
		{"Lowercase ok", "ok", at.EventNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := at.Classify([]byte(tt.input)); got != tt.expected {
				t.Errorf("Expected %v, got %v for input %q", tt.expected, got, tt.input)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Numeric code", "+CME ERROR: 16", "16\n"},
		{"Verbose text", "+CMS ERROR: unknown error", "unknown error\n"},
		{"Exactly fits", "+CME ERROR: " + "123456789012345678901234567890", "123456789012345678901234567890\n"},
		{"Clipped", "+CME ERROR: " + "1234567890123456789012345678901", "12345678901234567890123456789\n"},
		{"Short line", "+CME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := at.ErrorText([]byte(tt.input)); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSocketPatterns(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		available bool
		closed    bool
		noData    bool
	}{
		{name: "Data indication", input: "+CADATAIND: 0", available: true},
		{name: "Closed", input: "CLOSED", closed: true},
		{name: "PDP", input: "+PDP", closed: true},
		{name: "Socket state", input: "+CASTATE: 0,0", closed: true},
		{name: "Socket state with suffix", input: "+CASTATE: 0,0,1"},
		{name: "PDP deact text", input: "+PDP: DEACT"},
		{name: "No data", input: "+CARECV: 0", noData: true},
		{name: "Other", input: "+CSQ: 15,99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := []byte(tt.input)
			if got := at.IsDataAvailable(line); got != tt.available {
				t.Errorf("IsDataAvailable(%q): expected %v, got %v", tt.input, tt.available, got)
			}
			if got := at.IsSocketClosed(line); got != tt.closed {
				t.Errorf("IsSocketClosed(%q): expected %v, got %v", tt.input, tt.closed, got)
			}
			if got := at.IsNoData(line); got != tt.noData {
				t.Errorf("IsNoData(%q): expected %v, got %v", tt.input, tt.noData, got)
			}
		})
	}
}

func TestRecvLength(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		n      int
		isRecv bool
	}{
		{"Five bytes", "+CARECV: 5,", 5, true},
		{"Large", "+CARECV: 1400,", 1400, true},
		{"Zero", "+CARECV: 0,", 0, true},
		{"Garbage length", "+CARECV: x,", 0, true},
		{"Other URC", "+CREG: 0,", 0, false},
		{"Echo", "AT+CARECV=0,", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := at.RecvLength([]byte(tt.input))
			if ok != tt.isRecv || n != tt.n {
				t.Errorf("Expected (%d, %v), got (%d, %v)", tt.n, tt.isRecv, n, ok)
			}
		})
	}
}
