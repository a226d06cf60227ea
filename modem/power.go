package modem

import (
	"context"
	"time"
)

// PowerController switches the modem supply and drives its power key.
type PowerController interface {
	// PowerOn runs the power key sequence and returns once the modem reports
	// it is up, or an error after timeout.
	PowerOn(ctx context.Context, timeout time.Duration) error
	// PowerOff asks the modem to shut down and removes power.
	PowerOff(ctx context.Context) error
}
