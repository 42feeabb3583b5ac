package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudvps-middleware/internal/models"
)

const (
	sessionPrefix   = "payment:session:"
	pendingSetKey   = "payment:pending"
	callbackPrefix  = "payment:callback:"
	callbackSeenTTL = 7 * 24 * time.Hour
)

var ErrSessionNotFound = errors.New("payment session not found")

// KV is the subset of Cache the session store needs.
type KV interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	AddToSet(ctx context.Context, key string, members ...string) error
	RemoveFromSet(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// SessionStore keeps payment sessions in Redis. Non-final sessions are also
// indexed in a set so the poller can find them.
type SessionStore struct {
	kv  KV
	ttl time.Duration
}

func NewSessionStore(kv KV, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &SessionStore{kv: kv, ttl: ttl}
}

func (s *SessionStore) Save(ctx context.Context, sess *models.PaymentSession) error {
	if sess.TransactionID == "" {
		return fmt.Errorf("save session: empty transaction id")
	}
	sess.UpdatedAt = time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}
	if err := s.kv.SetTTL(ctx, sessionPrefix+sess.TransactionID, sess, s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.TransactionID, err)
	}
	if sess.Final() {
		return s.kv.RemoveFromSet(ctx, pendingSetKey, sess.TransactionID)
	}
	return s.kv.AddToSet(ctx, pendingSetKey, sess.TransactionID)
}

func (s *SessionStore) Get(ctx context.Context, transID string) (*models.PaymentSession, error) {
	var sess models.PaymentSession
	if err := s.kv.GetJSON(ctx, sessionPrefix+transID, &sess); err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, fmt.Errorf("%s: %w", transID, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", transID, err)
	}
	return &sess, nil
}

// Pending returns non-final sessions. Index entries whose session expired are
// dropped from the set.
func (s *SessionStore) Pending(ctx context.Context) ([]*models.PaymentSession, error) {
	ids, err := s.kv.SetMembers(ctx, pendingSetKey)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	var out []*models.PaymentSession
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			_ = s.kv.RemoveFromSet(ctx, pendingSetKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Final() {
			_ = s.kv.RemoveFromSet(ctx, pendingSetKey, id)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// FirstSeen reports whether this (gateway, transaction, status) notification is
// new. Gateways retry callbacks; repeats must not publish a second event.
func (s *SessionStore) FirstSeen(ctx context.Context, gateway, transID, status string) (bool, error) {
	key := fmt.Sprintf("%s%s:%s:%s", callbackPrefix, gateway, transID, status)
	return s.kv.Claim(ctx, key, callbackSeenTTL)
}
