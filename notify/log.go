package notify

import (
	"context"
	"strings"
	"sync"

	auth "github.com/trialbridge/go-auth"
)

// LogDeliverer logs that a reset code was issued without any of its digits.
// It stands in for a real channel in development.
type LogDeliverer struct {
	Logger auth.Logger
}

var _ auth.CodeDeliverer = LogDeliverer{}

func (d LogDeliverer) Deliver(_ context.Context, email, code string) error {
	if d.Logger != nil {
		d.Logger.Info("password reset code issued for %s: %s", email, MaskCode(code))
	}
	return nil
}

// MaskCode replaces every character of code.
func MaskCode(code string) string {
	return strings.Repeat("*", len(code))
}

// Delivery is one code handed to a Recorder.
type Delivery struct {
	Email string
	Code  string
}

// Recorder keeps every delivered code in memory. Useful in tests.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

var _ auth.CodeDeliverer = (*Recorder)(nil)

func (r *Recorder) Deliver(_ context.Context, email, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.deliveries = append(r.deliveries, Delivery{Email: email, Code: code})
	return nil
}

// Deliveries returns a copy of everything recorded so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Last returns the most recent code sent to email.
func (r *Recorder) Last(email string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = auth.NormalizeEmail(email)
	for i := len(r.deliveries) - 1; i >= 0; i-- {
		if auth.NormalizeEmail(r.deliveries[i].Email) == email {
			return r.deliveries[i].Code, true
		}
	}
	return "", false
}

// Fanout delivers to every deliverer in order and stops at the first error.
type Fanout []auth.CodeDeliverer

func (f Fanout) Deliver(ctx context.Context, email, code string) error {
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Deliver(ctx, email, code); err != nil {
			return err
		}
	}
	return nil
}
