package modem

import "errors"

var (
	// ErrNoDialer is returned when a Session is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// open the serial channel to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotOpen is returned when an operation needs the serial channel but
	// Init has not opened it yet, or it was closed after a failure.
	ErrNotOpen = errors.New("modem channel not open")

	// ErrAlreadyClosed is returned when Close is called on a Session that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card does not become ready
	// and no PIN was provided.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrCommand is wrapped by every status that means the modem rejected or
	// failed a command.
	ErrCommand = errors.New("modem command failed")

	// ErrTimeout is wrapped when a wait ran past its deadline.
	ErrTimeout = errors.New("modem timeout")

	// ErrNoMatch is wrapped when a command succeeded but its reply did not
	// contain the expected text.
	ErrNoMatch = errors.New("unexpected modem response")

	// ErrSearching is wrapped while the modem is still looking for a network.
	ErrSearching = errors.New("network search in progress")

	// ErrDenied is wrapped when network registration was denied.
	ErrDenied = errors.New("network registration denied")

	// ErrClosed is returned by socket operations on a closed connection.
	ErrClosed = errors.New("socket closed")

	// ErrNoData is returned by a socket read with nothing buffered.
	ErrNoData = errors.New("no socket data")

	// ErrOverflow is returned when the modem delivered more socket data than
	// the read buffer could hold.
	ErrOverflow = errors.New("socket data overflow")
)
