package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptRecord is the persisted view of a payment attempt being watched.
// It exists so a status lookup can resolve payment id -> order id (and the
// duplicate-initiation guard can resolve order id -> active attempt) across
// requests.
type AttemptRecord struct {
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Phone     string    `json:"phone"`
	Amount    float64   `json:"amount"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// AttemptStore persists attempt bookkeeping with a bounded lifetime.
type AttemptStore interface {
	Save(ctx context.Context, rec AttemptRecord) error
	GetByPayment(ctx context.Context, paymentID string) (*AttemptRecord, error)
	GetByOrder(ctx context.Context, orderID string) (*AttemptRecord, error)
	Delete(ctx context.Context, paymentID string) error
}

// ---- redis implementation ----

type RedisAttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAttemptStore(client *redis.Client, ttl time.Duration) *RedisAttemptStore {
	return &RedisAttemptStore{client: client, ttl: ttl}
}

func (s *RedisAttemptStore) paymentKey(paymentID string) string {
	return fmt.Sprintf("payment:attempt:%s", paymentID)
}

func (s *RedisAttemptStore) orderKey(orderID string) string {
	return fmt.Sprintf("payment:order:%s", orderID)
}

func (s *RedisAttemptStore) Save(ctx context.Context, rec AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.paymentKey(rec.PaymentID), data, s.ttl).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, s.orderKey(rec.OrderID), rec.PaymentID, s.ttl).Err()
}

func (s *RedisAttemptStore) GetByPayment(ctx context.Context, paymentID string) (*AttemptRecord, error) {
	data, err := s.client.Get(ctx, s.paymentKey(paymentID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec AttemptRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisAttemptStore) GetByOrder(ctx context.Context, orderID string) (*AttemptRecord, error) {
	paymentID, err := s.client.Get(ctx, s.orderKey(orderID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetByPayment(ctx, paymentID)
}

func (s *RedisAttemptStore) Delete(ctx context.Context, paymentID string) error {
	rec, err := s.GetByPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if rec != nil {
		if err := s.client.Del(ctx, s.orderKey(rec.OrderID)).Err(); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, s.paymentKey(paymentID)).Err()
}

// ---- in-memory implementation ----

// MemoryAttemptStore keeps the engine runnable and testable without Redis.
type MemoryAttemptStore struct {
	mu      sync.RWMutex
	byID    map[string]AttemptRecord
	byOrder map[string]string
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		byID:    make(map[string]AttemptRecord),
		byOrder: make(map[string]string),
	}
}

func (s *MemoryAttemptStore) Save(_ context.Context, rec AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.PaymentID] = rec
	s.byOrder[rec.OrderID] = rec.PaymentID
	return nil
}

func (s *MemoryAttemptStore) GetByPayment(_ context.Context, paymentID string) (*AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[paymentID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryAttemptStore) GetByOrder(ctx context.Context, orderID string) (*AttemptRecord, error) {
	s.mu.RLock()
	paymentID, ok := s.byOrder[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetByPayment(ctx, paymentID)
}

func (s *MemoryAttemptStore) Delete(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byID[paymentID]; ok {
		delete(s.byOrder, rec.OrderID)
	}
	delete(s.byID, paymentID)
	return nil
}
