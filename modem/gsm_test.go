package modem_test

import (
	"context"
	"testing"
	"time"

	"i4.energy/across/heracles/modem"
)

func TestCSQ(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected int
		status   modem.Status
	}{
		{
			name:     "Mid range",
			reply:    "\r\n+CSQ: 20,99\r\n\r\nOK\r\n",
			expected: -74,
			status:   modem.StatusOK,
		},
		{
			name:     "Weakest",
			reply:    "\r\n+CSQ: 0,0\r\n\r\nOK\r\n",
			expected: -115,
			status:   modem.StatusOK,
		},
		{
			name:     "Strongest",
			reply:    "\r\n+CSQ: 31,0\r\n\r\nOK\r\n",
			expected: -52,
			status:   modem.StatusOK,
		},
		{
			name:     "Not known",
			reply:    "\r\n+CSQ: 99,99\r\n\r\nOK\r\n",
			expected: modem.UnknownRSSI,
			status:   modem.StatusUnknownRSSI,
		},
		{
			name:     "Too many digits",
			reply:    "\r\n+CSQ: 123,99\r\n\r\nOK\r\n",
			expected: modem.UnknownRSSI,
			status:   modem.StatusError,
		},
		{
			name:     "Modem error",
			reply:    "\r\nERROR\r\n",
			expected: modem.UnknownRSSI,
			status:   modem.StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := modem.NewTestTransport()
			s := startSession(t, tr)
			tr.Reply("AT+CSQ", tt.reply)

			rssi, st := s.CSQ(context.Background(), time.Second)
			if st != tt.status {
				t.Errorf("expected %v, got: %v", tt.status, st)
			}
			if rssi != tt.expected {
				t.Errorf("expected %d dBm, got: %d", tt.expected, rssi)
			}
		})
	}
}

func TestRSSIToDBm(t *testing.T) {
	tests := []struct {
		rssi int
		dbm  int
		ok   bool
	}{
		{0, -115, true},
		{1, -111, true},
		{2, -110, true},
		{15, -84, true},
		{30, -54, true},
		{31, -52, true},
		{32, 0, false},
		{99, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		dbm, ok := modem.RSSIToDBm(tt.rssi)
		if dbm != tt.dbm || ok != tt.ok {
			t.Errorf("RSSIToDBm(%d): expected (%d, %v), got: (%d, %v)", tt.rssi, tt.dbm, tt.ok, dbm, ok)
		}
	}
}

func TestRegistration(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected modem.Status
	}{
		{"Home network", "\r\n+CREG: 0,1\r\n\r\nOK\r\n", modem.StatusOK},
		{"Roaming", "\r\n+CREG: 0,5\r\n\r\nOK\r\n", modem.StatusOK},
		{"Not searching", "\r\n+CREG: 0,0\r\n\r\nOK\r\n", modem.StatusSearching},
		{"Searching", "\r\n+CREG: 0,2\r\n\r\nOK\r\n", modem.StatusSearching},
		{"Denied", "\r\n+CREG: 0,3\r\n\r\nOK\r\n", modem.StatusDenied},
		{"Unknown", "\r\n+CREG: 0,4\r\n\r\nOK\r\n", modem.StatusError},
		{"Rejected command", "\r\n+CME ERROR: unknown\r\n", modem.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := modem.NewTestTransport()
			s := startSession(t, tr)
			tr.Reply("AT+CREG?", tt.reply)

			if st := s.Registration(context.Background(), time.Second); st != tt.expected {
				t.Errorf("expected %v, got: %v", tt.expected, st)
			}
		})
	}

	t.Run("Unrelated lines keep waiting", func(t *testing.T) {
		tr := modem.NewTestTransport()
		s := startSession(t, tr)
		tr.Reply("AT+CREG?", "\r\n+CGREG: 0,1\r\n\r\nOK\r\n")

		if st := s.Registration(context.Background(), 20*time.Millisecond); st != modem.StatusTimeout {
			t.Errorf("expected TIMEOUT, got: %v", st)
		}
	})
}

func TestAttached(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected modem.Status
	}{
		{"Attached", "\r\n+CGATT: 1\r\n\r\nOK\r\n", modem.StatusOK},
		{"Detached", "\r\n+CGATT: 0\r\n\r\nOK\r\n", modem.StatusNoMatch},
		{"Error", "\r\nERROR\r\n", modem.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := modem.NewTestTransport()
			s := startSession(t, tr)
			tr.Reply("AT+CGATT?", tt.reply)

			if st := s.Attached(context.Background(), time.Second); st != tt.expected {
				t.Errorf("expected %v, got: %v", tt.expected, st)
			}
		})
	}

	t.Run("Silent modem", func(t *testing.T) {
		s := startSession(t, modem.NewTestTransport())
		if st := s.Attached(context.Background(), 10*time.Millisecond); st != modem.StatusTimeout {
			t.Errorf("expected TIMEOUT, got: %v", st)
		}
	})
}
