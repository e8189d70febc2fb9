package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Victormzing/storefront-bff/clients"
	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/metrics"
	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/session"
	"go.uber.org/zap"
)

// WatcherState is the presentation state of one order's payment flow.
type WatcherState string

const (
	StateIdle     WatcherState = "idle"
	StatePending  WatcherState = "pending"
	StateSuccess  WatcherState = "success"
	StateFailed   WatcherState = "failed"
	StateTimedOut WatcherState = "timed_out"
)

// Retryable reports whether a fresh attempt may be started after this state.
func (s WatcherState) Retryable() bool {
	return s == StateFailed || s == StateTimedOut
}

// EventPublisher receives terminal payment transitions.
type EventPublisher interface {
	SendPaymentEvent(event models.PaymentEvent) error
}

// WatcherConfig controls the confirmation schedule. Polling backs off
// exponentially from BaseInterval up to MaxInterval unless Fixed is set,
// and gives up into StateTimedOut once Budget of wall-clock time is spent.
type WatcherConfig struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Budget       time.Duration // 0 disables the overall timeout
	Fixed        bool          // poll at BaseInterval forever, no backoff
}

func (c WatcherConfig) withDefaults() WatcherConfig {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 5 * time.Second
	}
	if c.MaxInterval < c.BaseInterval {
		c.MaxInterval = 30 * time.Second
		if c.MaxInterval < c.BaseInterval {
			c.MaxInterval = c.BaseInterval
		}
	}
	if c.Budget < 0 {
		c.Budget = 0
	}
	return c
}

// Snapshot is the externally observable state of a watcher.
type Snapshot struct {
	State             WatcherState `json:"state"`
	PaymentID         string       `json:"payment_id,omitempty"`
	OrderID           string       `json:"order_id"`
	Phone             string       `json:"phone_number,omitempty"`
	Receipt           string       `json:"mpesa_receipt,omitempty"`
	ResultDescription string       `json:"result_description,omitempty"`
	StartedAt         time.Time    `json:"started_at,omitempty"`
}

// PaymentWatcher drives one order's payment attempt from initiation to a
// terminal state. The attempt's gateway status is the single source of
// truth: cart side effects fire if and only if it reaches success, exactly
// once per attempt, and they complete before the success state becomes
// observable.
type PaymentWatcher struct {
	payments clients.PaymentGateway
	cart     clients.CartGateway
	events   EventPublisher
	metrics  *metrics.Client
	log      *zap.Logger
	cfg      WatcherConfig

	orderID string
	amount  float64

	mu         sync.Mutex
	sess       session.Handle
	state      WatcherState
	paymentID  string
	phone      string
	receipt    string
	resultDesc string
	startedAt  time.Time
	initiating bool
	clearedFor string // attempt id whose success side effects already ran
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewPaymentWatcher(orderID string, amount float64, sess session.Handle,
	payments clients.PaymentGateway, cart clients.CartGateway,
	events EventPublisher, mc *metrics.Client, log *zap.Logger, cfg WatcherConfig) *PaymentWatcher {
	return &PaymentWatcher{
		payments: payments,
		cart:     cart,
		events:   events,
		metrics:  mc,
		log:      log,
		cfg:      cfg.withDefaults(),
		orderID:  orderID,
		amount:   amount,
		sess:     sess,
		state:    StateIdle,
	}
}

// UpdateSession refreshes the bearer token used for upstream calls. The
// watcher outlives individual HTTP requests, so each request re-arms it.
func (w *PaymentWatcher) UpdateSession(sess session.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sess = sess
}

// Initiate normalizes the phone number, asks the gateway for an STK push
// and, on success, transitions idle -> pending and starts the confirmation
// loop. On gateway failure the watcher stays idle and the collaborator's
// message is surfaced to the caller.
func (w *PaymentWatcher) Initiate(ctx context.Context, phone string) (string, error) {
	normalized, err := models.NormalizePhone(phone)
	if err != nil {
		return "", apperrors.WithMessage(apperrors.ErrBadRequest, err.Error())
	}

	w.mu.Lock()
	switch {
	case w.initiating:
		w.mu.Unlock()
		return "", apperrors.ErrAttemptPending
	case w.state == StatePending:
		id := w.paymentID
		w.mu.Unlock()
		return id, apperrors.ErrAttemptPending
	case w.state != StateIdle:
		state := w.state
		w.mu.Unlock()
		if state == StateSuccess {
			return "", apperrors.ErrOrderNotPayable
		}
		return "", apperrors.WithMessage(apperrors.ErrBadRequest, "payment attempt must be retried first")
	}
	w.initiating = true
	sess := w.sess
	w.mu.Unlock()

	resp, err := w.payments.InitiatePayment(ctx, sess, w.orderID, normalized)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.initiating = false

	if err != nil {
		// stays idle; initiation failures always reach the user
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", apperrors.Wrap(apperrors.ErrPaymentInitiation, err)
	}

	w.state = StatePending
	w.paymentID = resp.PaymentID
	w.phone = normalized
	w.receipt = ""
	w.resultDesc = ""
	w.startedAt = time.Now()

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go w.run(runCtx, resp.PaymentID, done)

	w.recordCount(metrics.MetricPaymentInitiated)
	w.log.Info("payment initiated",
		zap.String("order_id", w.orderID),
		zap.String("payment_id", resp.PaymentID),
		zap.String("phone", normalized))
	return resp.PaymentID, nil
}

// Retry resets a failed or timed-out flow back to idle so a fresh attempt
// can be initiated. The prior attempt id is dropped and never consulted again.
func (w *PaymentWatcher) Retry() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.Retryable() {
		return apperrors.WithMessage(apperrors.ErrBadRequest, "payment is not in a retryable state")
	}
	w.state = StateIdle
	w.paymentID = ""
	w.receipt = ""
	w.resultDesc = ""
	return nil
}

// Stop cancels the confirmation schedule and waits for the loop to exit.
// An in-flight status call is not aborted mid-request by the HTTP client,
// but its result is discarded once cancellation is observed.
func (w *PaymentWatcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Snapshot returns the current observable state.
func (w *PaymentWatcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		State:             w.state,
		PaymentID:         w.paymentID,
		OrderID:           w.orderID,
		Phone:             w.phone,
		Receipt:           w.receipt,
		ResultDescription: w.resultDesc,
		StartedAt:         w.startedAt,
	}
}

// run is the confirmation loop. One status query per tick; the next tick is
// only scheduled after the previous query resolves, so queries for the same
// attempt never overlap.
func (w *PaymentWatcher) run(ctx context.Context, paymentID string, done chan struct{}) {
	defer close(done)

	interval := w.cfg.BaseInterval
	var deadline time.Time
	if w.cfg.Budget > 0 {
		deadline = time.Now().Add(w.cfg.Budget)
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		w.pollOnce(ctx, paymentID)

		if w.terminal() || ctx.Err() != nil {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			w.timeout(paymentID)
			return
		}

		if !w.cfg.Fixed {
			interval *= 2
			if interval > w.cfg.MaxInterval {
				interval = w.cfg.MaxInterval
			}
		}
		timer.Reset(interval)
	}
}

// pollOnce issues a single status query. Transient errors are logged and
// swallowed so one flaky response never aborts confirmation.
func (w *PaymentWatcher) pollOnce(ctx context.Context, paymentID string) {
	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()

	st, err := w.payments.PaymentStatus(ctx, sess, paymentID)
	if ctx.Err() != nil {
		// cancelled while the call was in flight; discard whatever came back
		return
	}
	if err != nil {
		w.recordCount(metrics.MetricPollErrors)
		w.log.Warn("payment status poll failed",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return
	}

	switch {
	case st.Status == models.PaymentSuccess:
		w.succeed(ctx, st)
	case st.Status.Terminal():
		w.fail(st)
	default:
		// initiated/pending: keep polling
	}
}

// succeed runs the cart side effects and only then makes the success state
// observable. The clearedFor guard keys the side effects to the attempt id
// so a racing poll cannot re-trigger them.
func (w *PaymentWatcher) succeed(ctx context.Context, st *models.PaymentStatusResponse) {
	w.mu.Lock()
	if w.state != StatePending || w.paymentID != st.PaymentID {
		w.mu.Unlock()
		return
	}
	alreadyCleared := w.clearedFor == st.PaymentID
	sess := w.sess
	started := w.startedAt
	w.mu.Unlock()

	if !alreadyCleared {
		if err := w.cart.ClearCart(ctx, sess); err != nil {
			w.log.Warn("cart clear after payment failed", zap.String("order_id", w.orderID), zap.Error(err))
		}
		if _, err := w.cart.FetchCart(ctx, sess); err != nil {
			w.log.Warn("cart refetch after payment failed", zap.String("order_id", w.orderID), zap.Error(err))
		}
	}
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	if w.state != StatePending {
		w.mu.Unlock()
		return
	}
	w.clearedFor = st.PaymentID
	w.state = StateSuccess
	w.receipt = st.MpesaReceipt
	w.resultDesc = st.ResultDescription
	userID := sess.UserID
	w.mu.Unlock()

	w.publish("payment_succeeded", st.PaymentID, userID, st.MpesaReceipt)
	w.recordCount(metrics.MetricPaymentSucceeded)
	w.recordLatency(metrics.MetricConfirmationTime, time.Since(started))
	w.log.Info("payment confirmed",
		zap.String("order_id", w.orderID),
		zap.String("payment_id", st.PaymentID),
		zap.String("receipt", st.MpesaReceipt))
}

func (w *PaymentWatcher) fail(st *models.PaymentStatusResponse) {
	w.mu.Lock()
	if w.state != StatePending || w.paymentID != st.PaymentID {
		w.mu.Unlock()
		return
	}
	w.state = StateFailed
	w.resultDesc = st.ResultDescription
	userID := w.sess.UserID
	w.mu.Unlock()

	w.publish("payment_failed", st.PaymentID, userID, "")
	w.recordCount(metrics.MetricPaymentFailed)
	w.log.Info("payment failed",
		zap.String("order_id", w.orderID),
		zap.String("payment_id", st.PaymentID),
		zap.String("result", st.ResultDescription))
}

func (w *PaymentWatcher) timeout(paymentID string) {
	w.mu.Lock()
	if w.state != StatePending {
		w.mu.Unlock()
		return
	}
	w.state = StateTimedOut
	w.resultDesc = "Payment confirmation timed out; check your order status"
	userID := w.sess.UserID
	w.mu.Unlock()

	w.publish("payment_timed_out", paymentID, userID, "")
	w.recordCount(metrics.MetricPaymentTimedOut)
	w.log.Warn("payment confirmation timed out",
		zap.String("order_id", w.orderID),
		zap.String("payment_id", paymentID),
		zap.Duration("budget", w.cfg.Budget))
}

func (w *PaymentWatcher) terminal() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state != StatePending
}

func (w *PaymentWatcher) publish(eventType, paymentID, userID, receipt string) {
	if w.events == nil {
		return
	}
	evt := models.PaymentEvent{
		Type:      eventType,
		OrderID:   w.orderID,
		UserID:    userID,
		PaymentID: paymentID,
		Amount:    w.amount,
		Currency:  "KES",
		Receipt:   receipt,
		Timestamp: time.Now().UTC(),
	}
	if err := w.events.SendPaymentEvent(evt); err != nil {
		w.log.Warn("payment event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

func (w *PaymentWatcher) recordCount(name string) {
	if w.metrics == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.metrics.RecordCount(mctx, name, map[string]string{"Service": "storefront-bff"})
}

func (w *PaymentWatcher) recordLatency(name string, d time.Duration) {
	if w.metrics == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.metrics.RecordLatency(mctx, name, d, map[string]string{"Service": "storefront-bff"})
}
