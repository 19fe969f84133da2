package forms

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultSubmitDelay = 1500 * time.Millisecond

// Receipt identifies a delivered submission.
type Receipt struct {
	ID string `json:"id"`
}

// Transport delivers a form's captured values. A returned error is treated
// as recoverable; the form stays usable for another attempt.
type Transport interface {
	Submit(ctx context.Context, form string, values map[string]string) (Receipt, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, form string, values map[string]string) (Receipt, error)

func (fn TransportFunc) Submit(ctx context.Context, form string, values map[string]string) (Receipt, error) {
	return fn(ctx, form, values)
}

// SimulatedTransport waits Delay and then accepts every submission.
type SimulatedTransport struct {
	Delay  time.Duration
	Clock  Clock
	Logger *slog.Logger
}

func (s *SimulatedTransport) Submit(ctx context.Context, form string, values map[string]string) (Receipt, error) {
	delay := s.Delay
	if delay <= 0 {
		delay = DefaultSubmitDelay
	}
	clock := s.Clock
	if clock == nil {
		clock = SystemClock()
	}
	done := make(chan struct{})
	timer := clock.AfterFunc(delay, func() { close(done) })
	select {
	case <-ctx.Done():
		timer.Stop()
		return Receipt{}, ctx.Err()
	case <-done:
	}
	receipt := Receipt{ID: uuid.NewString()}
	if s.Logger != nil {
		s.Logger.Info("simulated submission", "form", form, "receipt", receipt.ID, "fields", len(values))
	}
	return receipt, nil
}
