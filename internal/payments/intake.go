// Package payments turns verified payment-completion events into point credits.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/metrics"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type OutcomeKind string

const (
	OutcomeCredited    OutcomeKind = "credited"
	OutcomeDuplicate   OutcomeKind = "duplicate"
	OutcomeIgnored     OutcomeKind = "ignored"
	OutcomeRejected    OutcomeKind = "rejected"    // authentication failed
	OutcomeInvalid     OutcomeKind = "invalid"     // malformed payload or metadata
	OutcomeUnknownUser OutcomeKind = "unknown_user"
	OutcomeFailed      OutcomeKind = "failed" // storage error, safe to retry
)

// Outcome describes what happened to one delivery. Err is set for every kind
// except credited, duplicate and ignored.
type Outcome struct {
	Kind      OutcomeKind
	EventID   string
	EventType string
	UserID    uint
	Points    int64
	Balance   int64
	Err       error
}

// Creditor is the ledger operation the intake depends on.
type Creditor interface {
	ApplyPaymentCredit(ctx context.Context, eventID string, userID uint, points int64, description string) (ledger.Result, error)
}

// Notifier is told about successful credits. Failures are logged only.
type Notifier interface {
	NotifyPointsCredited(ctx context.Context, userID uint, points, balance int64) error
}

type Intake struct {
	secret   string
	creditor Creditor
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewIntake verifies events with the given endpoint secret. An empty secret
// runs in unsigned mode, which accepts any payload and must be opted into by
// configuration.
func NewIntake(secret string, creditor Creditor, notifier Notifier, m *metrics.Metrics) *Intake {
	if secret == "" {
		log.WithField("security", true).Warn("payment webhook running WITHOUT signature verification; never use this outside development")
	}
	return &Intake{secret: secret, creditor: creditor, notifier: notifier, metrics: m}
}

// Unsigned reports whether signatures are skipped.
func (in *Intake) Unsigned() bool { return in.secret == "" }

// HandlePaymentCompleted authenticates, parses and applies one delivery.
func (in *Intake) HandlePaymentCompleted(ctx context.Context, payload []byte, signature string) Outcome {
	out := in.handle(ctx, payload, signature)
	in.metrics.WebhookEvent(string(out.Kind))
	return out
}

func (in *Intake) handle(ctx context.Context, payload []byte, signature string) Outcome {
	event, err := in.authenticate(payload, signature)
	if err != nil {
		log.WithError(err).WithField("security", true).Warn("payment webhook rejected: authentication failed")
		return Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)}
	}
	out := Outcome{EventID: event.ID, EventType: string(event.Type)}
	if string(event.Type) != domain.EventCheckoutSessionCompleted {
		out.Kind = OutcomeIgnored
		log.WithFields(log.Fields{"event_id": event.ID, "type": event.Type}).Debug("payment webhook ignored")
		return out
	}
	if event.ID == "" {
		out.Kind, out.Err = OutcomeInvalid, domain.Invalid("id", "missing event id")
		return out
	}
	userID, points, err := parseSession(event)
	if err != nil {
		log.WithError(err).WithField("event_id", event.ID).Warn("payment webhook rejected: bad metadata")
		out.Kind, out.Err = OutcomeInvalid, err
		return out
	}
	out.UserID, out.Points = userID, points

	desc := fmt.Sprintf("Purchased %s points", formatPoints(points))
	res, err := in.creditor.ApplyPaymentCredit(ctx, event.ID, userID, points, desc)
	fields := log.Fields{"event_id": event.ID, "user_id": userID, "amount": points}
	switch {
	case err == nil:
		out.Kind, out.Balance = OutcomeCredited, res.Balance
		log.WithFields(fields).WithField("balance", res.Balance).Info("points purchase credited")
		if in.notifier != nil {
			if nerr := in.notifier.NotifyPointsCredited(ctx, userID, points, res.Balance); nerr != nil {
				log.WithError(nerr).WithFields(fields).Warn("points credit notification failed")
			}
		}
	case errors.Is(err, domain.ErrDuplicateEvent):
		out.Kind = OutcomeDuplicate
		log.WithFields(fields).Info("payment event already processed")
	case errors.Is(err, domain.ErrNotFound):
		out.Kind, out.Err = OutcomeUnknownUser, err
		log.WithError(err).WithFields(fields).WithField("reconcile", true).Error("paid event for unknown user; manual reconciliation required")
	case errors.Is(err, domain.ErrValidation):
		out.Kind, out.Err = OutcomeInvalid, err
	default:
		out.Kind, out.Err = OutcomeFailed, err
		log.WithError(err).WithFields(fields).Error("payment credit failed; processor will retry")
	}
	return out
}

func (in *Intake) authenticate(payload []byte, signature string) (stripe.Event, error) {
	if in.secret != "" {
		return webhook.ConstructEventWithOptions(payload, signature, in.secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("decode unsigned event: %w", err)
	}
	log.WithFields(log.Fields{"event_id": event.ID, "security": true}).Warn("accepted UNSIGNED payment event")
	return event, nil
}

func parseSession(event stripe.Event) (uint, int64, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return 0, 0, domain.Invalid("data.object", "missing")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return 0, 0, domain.Invalid("data.object", err.Error())
	}
	rawUser := strings.TrimSpace(session.Metadata["userId"])
	if rawUser == "" {
		return 0, 0, domain.Invalid("metadata.userId", "missing")
	}
	uid, err := strconv.ParseUint(rawUser, 10, 64)
	if err != nil || uid == 0 {
		return 0, 0, domain.Invalid("metadata.userId", "not a user id")
	}
	points, err := strconv.ParseInt(strings.TrimSpace(session.Metadata["points"]), 10, 64)
	if err != nil || points <= 0 {
		return 0, 0, domain.Invalid("metadata.points", "must be a positive integer")
	}
	return uint(uid), points, nil
}

// formatPoints renders 1000 as "1,000".
func formatPoints(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
