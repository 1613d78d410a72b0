package payment

import (
	"context"
	"errors"
	"time"

	"hotspot-billing/web/db"
)

// Poll schedule: the original operator flow gives a subscriber about a
// minute to approve the STK prompt on their phone.
const (
	PollAttempts = 6
	PollDelay    = 10 * time.Second
)

// ErrConfirmationTimeout means the poll bound was exhausted. It is not a
// payment failure: the gateway may still confirm later, and the reconciler
// picks those up.
var ErrConfirmationTimeout = errors.New("payment confirmation not found after polling")

// ConfirmationSource is the slice of the store the poller reads.
type ConfirmationSource interface {
	ConfirmationByCheckoutID(checkoutID string) (*db.PaymentConfirmation, error)
}

// Poller waits for the gateway callback row matching a correlation id.
type Poller struct {
	Source   ConfirmationSource
	Attempts int
	Delay    time.Duration
}

func NewPoller(source ConfirmationSource) *Poller {
	return &Poller{Source: source, Attempts: PollAttempts, Delay: PollDelay}
}

// Await polls the confirmations table until a row matching the checkout id
// appears or the attempt bound runs out. Any callback row ends the poll,
// including a failed charge; the caller inspects the result code. The wait is a timer select, so the
// goroutine handling this request suspends without pinning anything, and a
// client disconnect (ctx cancel) stops the loop right away. Store errors
// abort the poll; they are infrastructure faults, not "no row yet".
func (p *Poller) Await(ctx context.Context, checkoutID string) (*db.PaymentConfirmation, error) {
	for attempt := 0; attempt < p.Attempts; attempt++ {
		conf, err := p.Source.ConfirmationByCheckoutID(checkoutID)
		if err != nil {
			return nil, err
		}
		if conf != nil {
			return conf, nil
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, ErrConfirmationTimeout
}
