package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/services"
	"github.com/Victormzing/storefront-bff/session"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// ---- mock payment gateway ----

type mockPaymentGateway struct {
	mu            sync.Mutex
	initErr       error
	initGate      chan struct{}
	initCalls     int
	lastPhone     string
	statusFn      func(call int, paymentID string) (*models.PaymentStatusResponse, error)
	statusCalls   int
	statusPayment string
}

func (m *mockPaymentGateway) InitiatePayment(_ context.Context, _ session.Handle, orderID, phone string) (*models.InitiatePaymentResponse, error) {
	m.mu.Lock()
	gate := m.initGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	m.lastPhone = phone
	if m.initErr != nil {
		return nil, m.initErr
	}
	id := "pay_1"
	if m.initCalls > 1 {
		id = "pay_2"
	}
	return &models.InitiatePaymentResponse{PaymentID: id, CustomerMessage: "Check your phone"}, nil
}

func (m *mockPaymentGateway) PaymentStatus(_ context.Context, _ session.Handle, paymentID string) (*models.PaymentStatusResponse, error) {
	m.mu.Lock()
	m.statusCalls++
	call := m.statusCalls
	m.statusPayment = paymentID
	fn := m.statusFn
	m.mu.Unlock()
	if fn == nil {
		return &models.PaymentStatusResponse{PaymentID: paymentID, Status: models.PaymentPending}, nil
	}
	return fn(call, paymentID)
}

func (m *mockPaymentGateway) calls() (init, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls, m.statusCalls
}

// ---- mock cart gateway ----

type mockCartGateway struct {
	mu         sync.Mutex
	clearCalls int
	fetchCalls int
	clearErr   error
}

func (m *mockCartGateway) ClearCart(_ context.Context, _ session.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	return m.clearErr
}

func (m *mockCartGateway) FetchCart(_ context.Context, _ session.Handle) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	return &models.Cart{}, nil
}

func (m *mockCartGateway) calls() (clear, fetch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls, m.fetchCalls
}

// ---- mock event publisher ----

type mockEvents struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (m *mockEvents) SendPaymentEvent(evt models.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// ---- helpers ----

func testSession() session.Handle {
	return session.Handle{UserID: "user_1", Token: "token"}
}

func fastConfig() services.WatcherConfig {
	return services.WatcherConfig{
		BaseInterval: 5 * time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
		Budget:       2 * time.Second,
		Fixed:        true,
	}
}

func newWatcher(pg *mockPaymentGateway, cg *mockCartGateway, ev *mockEvents, cfg services.WatcherConfig) *services.PaymentWatcher {
	return services.NewPaymentWatcher("order_1", 2500, testSession(), pg, cg, ev, nil, zap.NewNop(), cfg)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func statusAlways(status models.PaymentStatus, receipt, desc string) func(int, string) (*models.PaymentStatusResponse, error) {
	return func(_ int, paymentID string) (*models.PaymentStatusResponse, error) {
		return &models.PaymentStatusResponse{
			PaymentID:         paymentID,
			Status:            status,
			MpesaReceipt:      receipt,
			ResultDescription: desc,
		}, nil
	}
}

// ---- tests ----

func TestInitiateNormalizesPhoneAndEntersPending(t *testing.T) {
	pg := &mockPaymentGateway{}
	cg := &mockCartGateway{}
	w := newWatcher(pg, cg, &mockEvents{}, fastConfig())
	defer w.Stop()

	id, err := w.Initiate(context.Background(), "0712345678")

	assert.NoError(t, err)
	assert.Equal(t, "pay_1", id)
	assert.Equal(t, "254712345678", pg.lastPhone)
	assert.Equal(t, services.StatePending, w.Snapshot().State)
}

func TestInitiateRejectsInvalidPhoneWithoutGatewayCall(t *testing.T) {
	pg := &mockPaymentGateway{}
	w := newWatcher(pg, &mockCartGateway{}, &mockEvents{}, fastConfig())

	_, err := w.Initiate(context.Background(), "07abc45678")

	assert.Error(t, err)
	init, _ := pg.calls()
	assert.Zero(t, init)
	assert.Equal(t, services.StateIdle, w.Snapshot().State)
}

func TestInitiateFailureStaysIdleAndSurfacesMessage(t *testing.T) {
	pg := &mockPaymentGateway{
		initErr: apperrors.WithMessage(apperrors.ErrPaymentInitiation, "Wallet is unreachable"),
	}
	w := newWatcher(pg, &mockCartGateway{}, &mockEvents{}, fastConfig())

	_, err := w.Initiate(context.Background(), "0712345678")

	assert.Error(t, err)
	var appErr *apperrors.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Wallet is unreachable", appErr.Message)
	assert.Equal(t, services.StateIdle, w.Snapshot().State)

	// the flow is recoverable: a second initiate succeeds
	pg.mu.Lock()
	pg.initErr = nil
	pg.mu.Unlock()
	_, err = w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)
	w.Stop()
}

func TestPendingStatusKeepsPolling(t *testing.T) {
	pg := &mockPaymentGateway{
		statusFn: func(call int, _ string) (*models.PaymentStatusResponse, error) {
			if call < 3 {
				return &models.PaymentStatusResponse{PaymentID: "pay_1", Status: models.PaymentPending}, nil
			}
			return &models.PaymentStatusResponse{PaymentID: "pay_1", Status: models.PaymentSuccess, MpesaReceipt: "ABC123"}, nil
		},
	}
	cg := &mockCartGateway{}
	w := newWatcher(pg, cg, &mockEvents{}, fastConfig())
	defer w.Stop()

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	eventually(t, func() bool { return w.Snapshot().State == services.StateSuccess },
		"watcher never reached success")

	_, status := pg.calls()
	assert.GreaterOrEqual(t, status, 3)
	assert.Equal(t, "ABC123", w.Snapshot().Receipt)
}

func TestSuccessClearsCartExactlyOnceBeforeObservable(t *testing.T) {
	pg := &mockPaymentGateway{statusFn: statusAlways(models.PaymentSuccess, "ABC123", "Processed")}
	cg := &mockCartGateway{}
	ev := &mockEvents{}
	w := newWatcher(pg, cg, ev, fastConfig())
	defer w.Stop()

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	eventually(t, func() bool { return w.Snapshot().State == services.StateSuccess },
		"watcher never reached success")

	// once success is observable the cart side effects have already run
	clear, fetch := cg.calls()
	assert.Equal(t, 1, clear)
	assert.Equal(t, 1, fetch)

	// and nothing fires again afterwards
	time.Sleep(30 * time.Millisecond)
	clear, fetch = cg.calls()
	assert.Equal(t, 1, clear)
	assert.Equal(t, 1, fetch)

	assert.Equal(t, []string{"payment_succeeded"}, ev.types())
	evt := ev.events[0]
	assert.Equal(t, "order_1", evt.OrderID)
	assert.Equal(t, 2500.0, evt.Amount)
	assert.Equal(t, "ABC123", evt.Receipt)
}

func TestFailureIsTerminalAndCartUntouched(t *testing.T) {
	pg := &mockPaymentGateway{statusFn: statusAlways(models.PaymentFailed, "", "Insufficient funds")}
	cg := &mockCartGateway{}
	ev := &mockEvents{}
	w := newWatcher(pg, cg, ev, fastConfig())
	defer w.Stop()

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	eventually(t, func() bool { return w.Snapshot().State == services.StateFailed },
		"watcher never reached failed")

	snap := w.Snapshot()
	assert.Equal(t, "Insufficient funds", snap.ResultDescription)
	clear, _ := cg.calls()
	assert.Zero(t, clear)
	assert.Equal(t, []string{"payment_failed"}, ev.types())
}

func TestRetryFromFailedProducesFreshAttempt(t *testing.T) {
	pg := &mockPaymentGateway{statusFn: statusAlways(models.PaymentFailed, "", "Cancelled by user")}
	w := newWatcher(pg, &mockCartGateway{}, &mockEvents{}, fastConfig())
	defer w.Stop()

	first, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)
	eventually(t, func() bool { return w.Snapshot().State == services.StateFailed },
		"watcher never reached failed")

	assert.NoError(t, w.Retry())
	snap := w.Snapshot()
	assert.Equal(t, services.StateIdle, snap.State)
	assert.Empty(t, snap.PaymentID)
	assert.Empty(t, snap.ResultDescription)

	pg.mu.Lock()
	pg.statusFn = statusAlways(models.PaymentSuccess, "XYZ789", "Processed")
	pg.mu.Unlock()

	second, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
	eventually(t, func() bool { return w.Snapshot().State == services.StateSuccess },
		"retried attempt never reached success")
}

func TestRetryRejectedUnlessTerminalRetryable(t *testing.T) {
	w := newWatcher(&mockPaymentGateway{}, &mockCartGateway{}, &mockEvents{}, fastConfig())
	assert.Error(t, w.Retry()) // idle

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)
	assert.Error(t, w.Retry()) // pending
	w.Stop()
}

func TestInitiateWhilePendingReturnsExistingAttempt(t *testing.T) {
	pg := &mockPaymentGateway{}
	w := newWatcher(pg, &mockCartGateway{}, &mockEvents{}, fastConfig())
	defer w.Stop()

	first, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	second, err := w.Initiate(context.Background(), "0712345678")
	assert.ErrorIs(t, err, apperrors.ErrAttemptPending)
	assert.Equal(t, first, second)

	init, _ := pg.calls()
	assert.Equal(t, 1, init)
}

func TestStopHaltsPollingDeterministically(t *testing.T) {
	pg := &mockPaymentGateway{}
	cg := &mockCartGateway{}
	ev := &mockEvents{}
	w := newWatcher(pg, cg, ev, fastConfig())

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	eventually(t, func() bool { _, s := pg.calls(); return s >= 1 }, "watcher never polled")
	w.Stop()

	_, before := pg.calls()
	time.Sleep(50 * time.Millisecond)
	_, after := pg.calls()

	assert.Equal(t, before, after, "polling continued after Stop")
	clear, _ := cg.calls()
	assert.Zero(t, clear)
	assert.Empty(t, ev.types())
}

func TestBudgetExhaustionTimesOut(t *testing.T) {
	pg := &mockPaymentGateway{} // pending forever
	ev := &mockEvents{}
	cfg := fastConfig()
	cfg.Budget = 25 * time.Millisecond
	w := newWatcher(pg, &mockCartGateway{}, ev, cfg)
	defer w.Stop()

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	eventually(t, func() bool { return w.Snapshot().State == services.StateTimedOut },
		"watcher never timed out")

	assert.Equal(t, []string{"payment_timed_out"}, ev.types())
	assert.NoError(t, w.Retry(), "timed out attempt should be retryable")
}

func TestTransientPollErrorsAreSwallowed(t *testing.T) {
	pg := &mockPaymentGateway{
		statusFn: func(call int, _ string) (*models.PaymentStatusResponse, error) {
			switch call {
			case 1:
				return nil, apperrors.Wrap(apperrors.ErrBadGateway, assert.AnError)
			case 2:
				return nil, apperrors.Wrap(apperrors.ErrMalformedResponse, assert.AnError)
			}
			return &models.PaymentStatusResponse{PaymentID: "pay_1", Status: models.PaymentSuccess, MpesaReceipt: "ABC123"}, nil
		},
	}
	w := newWatcher(pg, &mockCartGateway{}, &mockEvents{}, fastConfig())
	defer w.Stop()

	_, err := w.Initiate(context.Background(), "0712345678")
	assert.NoError(t, err)

	eventually(t, func() bool { return w.Snapshot().State == services.StateSuccess },
		"watcher did not recover from a transient poll error")
}
