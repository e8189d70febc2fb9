package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Victormzing/storefront-bff/clients"
	"github.com/Victormzing/storefront-bff/database"
	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/metrics"
	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/session"
	"go.uber.org/zap"
)

// InitiateResult is what the storefront shows after a pay-now action.
type InitiateResult struct {
	PaymentID string `json:"payment_id"`
	Message   string `json:"message"`
}

// StatusResult combines the watcher's presentation state with the
// gateway-reported details for a payment attempt.
type StatusResult struct {
	PaymentID         string       `json:"payment_id"`
	OrderID           string       `json:"order_id,omitempty"`
	State             WatcherState `json:"state"`
	MpesaReceipt      string       `json:"mpesa_receipt,omitempty"`
	ResultDescription string       `json:"result_description,omitempty"`
}

// WatcherDeps bundles the collaborators a registry hands to each watcher.
type WatcherDeps struct {
	Payments clients.PaymentGateway
	Orders   clients.OrderGateway
	Cart     clients.CartGateway
	Events   EventPublisher
	Metrics  *metrics.Client
	Store    database.AttemptStore
	Log      *zap.Logger
	Config   WatcherConfig
}

// WatcherRegistry owns one PaymentWatcher per order and mediates the
// storefront payment operations: initiate is idempotent while an attempt is
// pending, retry discards the prior attempt, and shutdown tears every
// confirmation loop down deterministically.
type WatcherRegistry struct {
	deps WatcherDeps

	mu        sync.Mutex
	byOrder   map[string]*PaymentWatcher
	byPayment map[string]*PaymentWatcher
	initLocks map[string]*sync.Mutex
}

func NewWatcherRegistry(deps WatcherDeps) *WatcherRegistry {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &WatcherRegistry{
		deps:      deps,
		byOrder:   make(map[string]*PaymentWatcher),
		byPayment: make(map[string]*PaymentWatcher),
		initLocks: make(map[string]*sync.Mutex),
	}
}

// InitiatePayment verifies the order is still payable, then starts (or
// reuses) the order's payment attempt. A second initiation while an attempt
// is pending returns the existing payment id rather than pushing twice; the
// guard holds across restarts via the attempt store and across concurrent
// requests via a per-order lock.
func (r *WatcherRegistry) InitiatePayment(ctx context.Context, sess session.Handle, orderID, phone string) (*InitiateResult, error) {
	order, err := r.deps.Orders.GetOrder(ctx, sess, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPendingPayment {
		return nil, apperrors.ErrOrderNotPayable
	}

	lock := r.initLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	w := r.watcherFor(orderID, order.TotalAmount, sess)
	w.UpdateSession(sess)

	snap := w.Snapshot()
	if snap.State == StatePending {
		return &InitiateResult{PaymentID: snap.PaymentID, Message: "Payment already initiated"}, nil
	}
	if snap.State.Retryable() {
		r.dropAttempt(ctx, snap.PaymentID)
		if err := w.Retry(); err != nil {
			return nil, err
		}
	}

	// a fresh watcher may shadow an attempt started before a restart; the
	// store record keeps that attempt authoritative until it resolves
	if snap.State == StateIdle && snap.PaymentID == "" && r.deps.Store != nil {
		rec, err := r.deps.Store.GetByOrder(ctx, orderID)
		if err == nil && rec != nil && rec.State == string(StatePending) {
			return &InitiateResult{PaymentID: rec.PaymentID, Message: "Payment already initiated"}, nil
		}
	}

	paymentID, err := w.Initiate(ctx, phone)
	if err != nil {
		if errors.Is(err, apperrors.ErrAttemptPending) {
			if paymentID == "" {
				paymentID = w.Snapshot().PaymentID
			}
			if paymentID != "" {
				return &InitiateResult{PaymentID: paymentID, Message: "Payment already initiated"}, nil
			}
		}
		return nil, err
	}

	r.mu.Lock()
	r.byPayment[paymentID] = w
	r.mu.Unlock()

	r.saveAttempt(ctx, w.Snapshot(), sess.UserID, order.TotalAmount)
	return &InitiateResult{PaymentID: paymentID, Message: "STK push sent, check your phone"}, nil
}

// PaymentStatus reports the watcher state for a payment id. If no watcher
// is tracking it (for example after a restart) the gateway is consulted
// directly so the storefront can still render a truthful answer.
func (r *WatcherRegistry) PaymentStatus(ctx context.Context, sess session.Handle, paymentID string) (*StatusResult, error) {
	r.mu.Lock()
	w := r.byPayment[paymentID]
	r.mu.Unlock()

	if w != nil {
		w.UpdateSession(sess)
		snap := w.Snapshot()
		r.syncAttempt(ctx, snap)
		return &StatusResult{
			PaymentID:         snap.PaymentID,
			OrderID:           snap.OrderID,
			State:             snap.State,
			MpesaReceipt:      snap.Receipt,
			ResultDescription: snap.ResultDescription,
		}, nil
	}

	st, err := r.deps.Payments.PaymentStatus(ctx, sess, paymentID)
	if err != nil {
		return nil, err
	}
	var rec *database.AttemptRecord
	if r.deps.Store != nil {
		rec, _ = r.deps.Store.GetByPayment(ctx, paymentID)
	}
	res := &StatusResult{
		PaymentID:         st.PaymentID,
		State:             stateForStatus(st.Status),
		MpesaReceipt:      st.MpesaReceipt,
		ResultDescription: st.ResultDescription,
	}
	if rec != nil {
		res.OrderID = rec.OrderID
		if rec.State != string(res.State) {
			rec.State = string(res.State)
			if err := r.deps.Store.Save(ctx, *rec); err != nil {
				r.deps.Log.Warn("attempt record sync failed", zap.String("payment_id", paymentID), zap.Error(err))
			}
		}
	}
	return res, nil
}

// RetryPayment resets a failed or timed-out attempt so initiate can start a
// fresh one. The old payment id is unregistered and its record deleted; it
// is never consulted again.
func (r *WatcherRegistry) RetryPayment(ctx context.Context, sess session.Handle, paymentID string) error {
	r.mu.Lock()
	w := r.byPayment[paymentID]
	r.mu.Unlock()
	if w == nil {
		return apperrors.ErrPaymentNotFound
	}

	w.UpdateSession(sess)
	if err := w.Retry(); err != nil {
		return err
	}
	r.dropAttempt(ctx, paymentID)
	return nil
}

// OrderState returns the watcher snapshot for an order, if one exists.
func (r *WatcherRegistry) OrderState(orderID string) (Snapshot, bool) {
	r.mu.Lock()
	w := r.byOrder[orderID]
	r.mu.Unlock()
	if w == nil {
		return Snapshot{}, false
	}
	return w.Snapshot(), true
}

// Shutdown stops every confirmation loop and blocks until they have all
// exited. After it returns no further upstream calls are issued.
func (r *WatcherRegistry) Shutdown() {
	r.mu.Lock()
	watchers := make([]*PaymentWatcher, 0, len(r.byOrder))
	for _, w := range r.byOrder {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func(w *PaymentWatcher) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
	r.deps.Log.Info("payment watchers stopped", zap.Int("count", len(watchers)))
}

func (r *WatcherRegistry) initLock(orderID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.initLocks[orderID]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.initLocks[orderID] = l
	return l
}

func (r *WatcherRegistry) watcherFor(orderID string, amount float64, sess session.Handle) *PaymentWatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.byOrder[orderID]; ok {
		return w
	}
	w := NewPaymentWatcher(orderID, amount, sess,
		r.deps.Payments, r.deps.Cart, r.deps.Events, r.deps.Metrics, r.deps.Log, r.deps.Config)
	r.byOrder[orderID] = w
	return w
}

func (r *WatcherRegistry) saveAttempt(ctx context.Context, snap Snapshot, userID string, amount float64) {
	if r.deps.Store == nil || snap.PaymentID == "" {
		return
	}
	rec := database.AttemptRecord{
		PaymentID: snap.PaymentID,
		OrderID:   snap.OrderID,
		UserID:    userID,
		Phone:     snap.Phone,
		Amount:    amount,
		State:     string(snap.State),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.deps.Store.Save(ctx, rec); err != nil {
		r.deps.Log.Warn("attempt record save failed", zap.String("payment_id", snap.PaymentID), zap.Error(err))
	}
}

func (r *WatcherRegistry) syncAttempt(ctx context.Context, snap Snapshot) {
	if r.deps.Store == nil || snap.PaymentID == "" {
		return
	}
	rec, err := r.deps.Store.GetByPayment(ctx, snap.PaymentID)
	if err != nil || rec == nil || rec.State == string(snap.State) {
		return
	}
	rec.State = string(snap.State)
	if err := r.deps.Store.Save(ctx, *rec); err != nil {
		r.deps.Log.Warn("attempt record sync failed", zap.String("payment_id", snap.PaymentID), zap.Error(err))
	}
}

func (r *WatcherRegistry) dropAttempt(ctx context.Context, paymentID string) {
	if paymentID == "" {
		return
	}
	r.mu.Lock()
	delete(r.byPayment, paymentID)
	r.mu.Unlock()
	if r.deps.Store != nil {
		if err := r.deps.Store.Delete(ctx, paymentID); err != nil {
			r.deps.Log.Warn("attempt record delete failed", zap.String("payment_id", paymentID), zap.Error(err))
		}
	}
}

func stateForStatus(s models.PaymentStatus) WatcherState {
	switch s {
	case models.PaymentSuccess:
		return StateSuccess
	case models.PaymentFailed:
		return StateFailed
	default:
		return StatePending
	}
}
