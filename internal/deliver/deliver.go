// Package deliver relays matched messages: forward first, copy when
// forwarding is disallowed, with bounded backoff on transient errors.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"keyword_forwarder/internal/model"
)

// ErrRestricted marks a forward attempt rejected because the source
// chat protects its content. Transports wrap the platform error with it
// so the engine can branch into the copy fallback.
var ErrRestricted = errors.New("forwarding restricted")

// TransientError marks a failure worth retrying: rate limits and
// network-level errors. RetryAfter carries the platform's wait hint
// when one was given.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transport performs the actual send operations against the chat platform.
type Transport interface {
	Forward(ctx context.Context, msg model.Message, destChatID int64) error
	Copy(ctx context.Context, msg model.Message, destChatID int64) error
}

// Engine classifies delivery outcomes around a Transport.
type Engine struct {
	transport   Transport
	log         *slog.Logger
	maxAttempts uint64
	baseDelay   time.Duration
}

// NewEngine creates an Engine. maxAttempts bounds the retries of one
// send operation on transient errors.
func NewEngine(transport Transport, maxAttempts int, log *slog.Logger) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{
		transport:   transport,
		log:         log,
		maxAttempts: uint64(maxAttempts),
		baseDelay:   time.Second,
	}
}

// SetBaseDelay overrides the initial backoff delay (useful for testing).
func (e *Engine) SetBaseDelay(d time.Duration) {
	e.baseDelay = d
}

// Deliver relays msg to the destination and reports what happened.
// Exactly one outbound message is produced for a forwarded or copied
// outcome; none for failed or skipped. Absence of delivery is a value,
// not an error: the caller keeps scanning either way.
func (e *Engine) Deliver(ctx context.Context, msg model.Message, destChatID int64) model.Delivery {
	fwdErr := e.withBackoff(ctx, func(ctx context.Context) error {
		return e.transport.Forward(ctx, msg, destChatID)
	})
	if fwdErr == nil {
		return model.Delivery{Status: model.DeliveryForwarded}
	}

	var transient *TransientError
	if errors.As(fwdErr, &transient) {
		// Retries exhausted on a transient condition; copying now would
		// hit the same limit.
		return model.Delivery{Status: model.DeliveryFailed, Reason: fmt.Sprintf("forward: %v", fwdErr)}
	}

	if errors.Is(fwdErr, ErrRestricted) {
		e.log.Debug("forward restricted, attempting copy", "message_id", msg.ID, "chat_id", msg.ChatID)
	} else {
		e.log.Warn("forward failed, attempting copy", "message_id", msg.ID, "chat_id", msg.ChatID, "error", fwdErr)
	}

	if !msg.Copyable() {
		return model.Delivery{Status: model.DeliverySkipped, Reason: "no copyable content"}
	}

	copyErr := e.withBackoff(ctx, func(ctx context.Context) error {
		return e.transport.Copy(ctx, msg, destChatID)
	})
	if copyErr == nil {
		return model.Delivery{Status: model.DeliveryCopied}
	}
	return model.Delivery{Status: model.DeliveryFailed, Reason: fmt.Sprintf("forward: %v; copy: %v", fwdErr, copyErr)}
}

// withBackoff runs op, retrying transient errors with exponential
// backoff and jitter up to the configured attempt limit. A wait hint
// carried by the error replaces the next computed delay. Non-transient
// errors abort immediately.
func (e *Engine) withBackoff(ctx context.Context, op func(context.Context) error) error {
	base := retry.NewExponential(e.baseDelay)
	base = retry.WithJitterPercent(25, base)
	base = retry.WithMaxRetries(e.maxAttempts-1, base)

	var hint time.Duration
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := base.Next()
		if stop {
			return 0, true
		}
		if hint > 0 {
			next = hint
			hint = 0
		}
		return next, false
	})

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var transient *TransientError
		if errors.As(err, &transient) {
			if transient.RetryAfter > 0 {
				e.log.Warn("rate limited, waiting", "retry_after", transient.RetryAfter)
				hint = transient.RetryAfter
			}
			return retry.RetryableError(err)
		}
		return err
	})
}
