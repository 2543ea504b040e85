package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/events"
	redisclient "github.com/saifyeddes/GestionClinic-sub000/internal/redis"
)

const (
	// maxSettleAttempts bounds how often reconcile re-reads after losing a race
	// on the appointment row.
	maxSettleAttempts = 5
	sweepBatchSize    = 100
)

// Engine runs checkouts and reconciliation. Reconcile is safe to call any number
// of times, from any channel, in any order: each session confirms at most once.
type Engine struct {
	intents  Repository
	appts    AppointmentReader
	provider Provider
	locker   redisclient.Locker
	sink     events.Sink
	cfg      config.Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewEngine(
	intents Repository,
	appts AppointmentReader,
	provider Provider,
	locker redisclient.Locker,
	sink events.Sink,
	cfg config.Config,
	logger zerolog.Logger,
) *Engine {
	if sink == nil {
		sink = events.Nop{}
	}
	if cfg.ProviderRetries < 1 {
		cfg.ProviderRetries = 1
	}
	return &Engine{
		intents:  intents,
		appts:    appts,
		provider: provider,
		locker:   locker,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.With().Str("component", "payment").Logger(),
		now:      time.Now,
	}
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func (e *Engine) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.ProviderTimeout)
}

func (e *Engine) loadAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	appt, err := e.appts.GetAppointmentByID(sctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (e *Engine) loadIntent(ctx context.Context, sessionID string) (*PaymentIntent, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	in, err := e.intents.GetIntent(sctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load payment intent: %w", err)
	}
	return in, nil
}

// BeginCheckout opens a provider session for a payable appointment and records
// it as a PENDING intent. The appointment itself is not changed. The provider
// call is made once; if it fails nothing is stored.
func (e *Engine) BeginCheckout(ctx context.Context, p *auth.Principal, appointmentID uuid.UUID, amountMinorUnits int64, payerEmail string) (*PaymentIntent, error) {
	if p == nil {
		return nil, auth.ErrUnauthorized
	}

	appt, err := e.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, auth.CapAppointmentPay, appointment.ResourceOf(appt)); err != nil {
		return nil, err
	}

	payerEmail = strings.TrimSpace(payerEmail)
	switch {
	case amountMinorUnits <= 0:
		return nil, fmt.Errorf("%w: amount must be positive", appointment.ErrInvalidInput)
	case payerEmail == "":
		return nil, fmt.Errorf("%w: payer_email is required", appointment.ErrInvalidInput)
	}

	if !appt.Payable() {
		return nil, fmt.Errorf("%w: status %s, payment %s", ErrNotPayable, appt.Status, appt.PaymentStatus)
	}

	pctx, cancel := e.providerCtx(ctx)
	session, err := e.provider.CreateSession(pctx, SessionRequest{
		AmountMinorUnits: amountMinorUnits,
		Currency:         e.cfg.Currency,
		PayerEmail:       payerEmail,
		Metadata: map[string]any{
			"appointment_id": appt.ID.String(),
			"payer_email":    payerEmail,
		},
	})
	cancel()
	if err != nil {
		e.logger.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("checkout session creation failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	intent := PaymentIntent{
		ID:               session.ID,
		AppointmentID:    appt.ID,
		AmountMinorUnits: amountMinorUnits,
		Currency:         e.cfg.Currency,
		PayerEmail:       payerEmail,
		Status:           IntentPending,
		RedirectURL:      session.RedirectURL,
		CreatedAt:        e.now().UTC(),
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.intents.CreateIntent(sctx, intent); err != nil {
		// the provider session exists but nothing points at it; it will lapse unpaid
		e.logger.Error().Err(err).
			Str("session_id", session.ID).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to store payment intent")
		return nil, fmt.Errorf("store payment intent: %w", err)
	}

	e.logEvent(ctx, appt.ID, events.CheckoutStarted, map[string]any{
		"session_id":   intent.ID,
		"amount":       intent.AmountMinorUnits,
		"currency":     intent.Currency,
		"principal_id": p.ID.String(),
	})

	return &intent, nil
}

// Reconcile merges the provider's view of a session into the appointment.
// Provider lookups are retried with backoff; so is settling after a lost race on
// the appointment row.
func (e *Engine) Reconcile(ctx context.Context, sessionID string) (Result, error) {
	intent, err := e.loadIntent(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return Result{Outcome: OutcomeUnknown, SessionID: sessionID}, nil
		}
		return Result{}, err
	}

	if intent.Status == IntentReconciled {
		return e.alreadyReconciled(ctx, intent)
	}

	status, err := e.lookupSession(ctx, intent.ID)
	if err != nil {
		return Result{}, err
	}
	if !status.Paid {
		appt, err := e.loadAppointment(ctx, intent.AppointmentID)
		if err != nil && !errors.Is(err, appointment.ErrAppointmentNotFound) {
			return Result{}, err
		}
		return Result{Outcome: OutcomeNotPaid, SessionID: intent.ID, Appointment: appt}, nil
	}

	res, err := e.settle(ctx, intent)
	if err != nil {
		return Result{}, err
	}

	if res.Outcome == OutcomeReconciled {
		e.logEvent(ctx, intent.AppointmentID, events.PaymentReconciled, map[string]any{
			"session_id":     intent.ID,
			"amount":         intent.AmountMinorUnits,
			"currency":       intent.Currency,
			"status":         string(res.Appointment.Status),
			"payment_status": string(res.Appointment.PaymentStatus),
		})
	}

	e.logger.Info().
		Str("session_id", intent.ID).
		Str("appointment_id", intent.AppointmentID.String()).
		Str("outcome", string(res.Outcome)).
		Msg("payment reconciled")

	return res, nil
}

func (e *Engine) alreadyReconciled(ctx context.Context, intent *PaymentIntent) (Result, error) {
	appt, err := e.loadAppointment(ctx, intent.AppointmentID)
	if err != nil && !errors.Is(err, appointment.ErrAppointmentNotFound) {
		return Result{}, err
	}
	return Result{Outcome: OutcomeAlreadyReconciled, SessionID: intent.ID, Appointment: appt}, nil
}

func (e *Engine) lookupSession(ctx context.Context, id string) (SessionStatus, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.ProviderRetries; attempt++ {
		pctx, cancel := e.providerCtx(ctx)
		status, err := e.provider.GetSession(pctx, id)
		cancel()
		if err == nil {
			return status, nil
		}
		lastErr = err

		e.logger.Warn().Err(err).
			Str("session_id", id).
			Int("attempt", attempt).
			Msg("provider session lookup failed")

		if attempt == e.cfg.ProviderRetries {
			break
		}
		if err := sleep(ctx, e.cfg.ProviderRetryBackoff<<(attempt-1)); err != nil {
			return SessionStatus{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
	}
	return SessionStatus{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

// settle claims the intent and confirms the appointment under the appointment
// lock. If the appointment is already PAID through another session the intent is
// still claimed, the appointment is left alone and the outcome is AlreadyReconciled.
func (e *Engine) settle(ctx context.Context, intent *PaymentIntent) (Result, error) {
	for attempt := 1; ; attempt++ {
		var res Result
		err := e.locker.WithLock(ctx, redisclient.AppointmentKey(intent.AppointmentID), func(lockCtx context.Context) error {
			sctx, cancel := e.storeCtx(lockCtx)
			defer cancel()

			appt, err := e.appts.GetAppointmentByID(sctx, intent.AppointmentID)
			if err != nil {
				return err
			}

			outcome := OutcomeReconciled
			var patch *appointment.Patch
			if appt.PaymentStatus == appointment.PaymentPending {
				p := appointment.ConfirmPayment(appt)
				patch = &p
			} else {
				outcome = OutcomeAlreadyReconciled
			}

			updated, err := e.intents.Settle(sctx, intent.ID, *appt, patch)
			if err != nil {
				return err
			}
			res = Result{Outcome: outcome, SessionID: intent.ID, Appointment: updated}
			return nil
		})

		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrIntentNotPending):
			return e.alreadyReconciled(ctx, intent)
		case errors.Is(err, appointment.ErrConflict), errors.Is(err, redisclient.ErrLockNotAcquired):
			if attempt >= maxSettleAttempts {
				return Result{}, fmt.Errorf("%w: gave up settling session %s after %d attempts", appointment.ErrConflict, intent.ID, attempt)
			}
			e.logger.Debug().
				Str("session_id", intent.ID).
				Int("attempt", attempt).
				Msg("appointment changed while settling, retrying")
			if err := sleep(ctx, e.cfg.ProviderRetryBackoff*time.Duration(attempt)); err != nil {
				return Result{}, err
			}
		case errors.Is(err, appointment.ErrAppointmentNotFound):
			return Result{}, err
		default:
			return Result{}, fmt.Errorf("settle session %s: %w", intent.ID, err)
		}
	}
}

// VerifyPayment is the payer's poll: it checks the caller may pay for the
// intent's appointment, then reconciles.
func (e *Engine) VerifyPayment(ctx context.Context, p *auth.Principal, sessionID string) (Result, error) {
	if p == nil {
		return Result{}, auth.ErrUnauthorized
	}

	intent, err := e.loadIntent(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	appt, err := e.loadAppointment(ctx, intent.AppointmentID)
	if err != nil {
		return Result{}, err
	}
	if err := auth.Authorize(p, auth.CapAppointmentPay, appointment.ResourceOf(appt)); err != nil {
		return Result{}, err
	}

	return e.Reconcile(ctx, sessionID)
}

type webhookPayload struct {
	SessionID string `json:"session_id"`
	Paid      bool   `json:"paid"`
}

// HandleWebhook verifies the signature over the raw body before reading it.
// A paid=false notice is acknowledged without asking the provider.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signature string) (Result, error) {
	if err := VerifySignature([]byte(e.cfg.WebhookSecret), body, signature); err != nil {
		return Result{}, err
	}

	var payload webhookPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("%w: webhook body: %v", appointment.ErrInvalidInput, err)
	}
	if dec.More() {
		return Result{}, fmt.Errorf("%w: webhook body must be a single JSON object", appointment.ErrInvalidInput)
	}
	if payload.SessionID == "" {
		return Result{}, fmt.Errorf("%w: session_id is required", appointment.ErrInvalidInput)
	}

	if !payload.Paid {
		return Result{Outcome: OutcomeNotPaid, SessionID: payload.SessionID}, nil
	}
	return e.Reconcile(ctx, payload.SessionID)
}

// ExpireStale reconciles PENDING intents older than olderThan once, which picks
// up confirmations whose webhook never arrived, and expires the ones still unpaid.
func (e *Engine) ExpireStale(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	var report SweepReport

	cutoff := e.now().Add(-olderThan)
	sctx, cancel := e.storeCtx(ctx)
	stale, err := e.intents.ListPendingOlderThan(sctx, cutoff, sweepBatchSize)
	cancel()
	if err != nil {
		return report, fmt.Errorf("list stale intents: %w", err)
	}

	for _, intent := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		res, err := e.Reconcile(ctx, intent.ID)
		if err != nil {
			report.Failed++
			e.logger.Warn().Err(err).Str("session_id", intent.ID).Msg("reconcile during sweep failed")
			continue
		}

		switch res.Outcome {
		case OutcomeReconciled:
			report.Reconciled++
		case OutcomeNotPaid:
			sctx, cancel := e.storeCtx(ctx)
			err := e.intents.MarkExpired(sctx, intent.ID)
			cancel()
			if err != nil {
				if errors.Is(err, ErrIntentNotPending) {
					continue
				}
				report.Failed++
				e.logger.Warn().Err(err).Str("session_id", intent.ID).Msg("failed to expire intent")
				continue
			}
			report.Expired++
			e.logEvent(ctx, intent.AppointmentID, events.PaymentIntentExpired, map[string]any{
				"session_id": intent.ID,
				"created_at": intent.CreatedAt,
			})
		}
	}

	return report, nil
}

func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	ev := events.Event{
		Type:          eventType,
		AppointmentID: appointmentID,
		Payload:       payload,
		OccurredAt:    e.now().UTC(),
	}

	if err := e.sink.Emit(ctx, ev); err != nil {
		e.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to record event")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
