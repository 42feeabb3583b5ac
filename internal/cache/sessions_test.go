package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloudvps-middleware/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	values map[string][]byte
	sets   map[string]map[string]bool
}

func newMemKV() *memKV {
	return &memKV{values: map[string][]byte{}, sets: map[string]map[string]bool{}}
}

func (m *memKV) GetJSON(_ context.Context, key string, dst any) error {
	b, ok := m.values[key]
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(b, dst)
}

func (m *memKV) SetTTL(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = b
	return nil
}

func (m *memKV) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = []byte("1")
	return true, nil
}

func (m *memKV) AddToSet(_ context.Context, key string, members ...string) error {
	if m.sets[key] == nil {
		m.sets[key] = map[string]bool{}
	}
	for _, v := range members {
		m.sets[key][v] = true
	}
	return nil
}

func (m *memKV) RemoveFromSet(_ context.Context, key string, members ...string) error {
	for _, v := range members {
		delete(m.sets[key], v)
	}
	return nil
}

func (m *memKV) SetMembers(_ context.Context, key string) ([]string, error) {
	var out []string
	for v := range m.sets[key] {
		out = append(out, v)
	}
	return out, nil
}

func TestSessionStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newMemKV(), time.Hour)

	sess := &models.PaymentSession{
		TransactionID: "AB12-CD34",
		Gateway:       models.GatewayComgate,
		InvoiceID:     "501",
		AmountCents:   24200,
		Status:        models.PaymentPending,
	}
	require.NoError(t, store.Save(ctx, sess))
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := store.Get(ctx, "AB12-CD34")
	require.NoError(t, err)
	assert.Equal(t, "501", got.InvoiceID)
	assert.Equal(t, int64(24200), got.AmountCents)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStorePendingIndex(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := NewSessionStore(kv, time.Hour)

	require.NoError(t, store.Save(ctx, &models.PaymentSession{TransactionID: "t1", Status: models.PaymentPending}))
	require.NoError(t, store.Save(ctx, &models.PaymentSession{TransactionID: "t2", Status: models.PaymentAuthorized}))
	require.NoError(t, store.Save(ctx, &models.PaymentSession{TransactionID: "t3", Status: models.PaymentCaptured}))
	// indexed but expired
	require.NoError(t, kv.AddToSet(ctx, pendingSetKey, "gone"))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, s := range pending {
		ids[s.TransactionID] = true
	}
	assert.Equal(t, map[string]bool{"t1": true, "t2": true}, ids)
	assert.False(t, kv.sets[pendingSetKey]["gone"])

	require.NoError(t, store.Save(ctx, &models.PaymentSession{TransactionID: "t1", Status: models.PaymentCancelled}))
	assert.False(t, kv.sets[pendingSetKey]["t1"])
}

func TestSessionStoreFirstSeen(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newMemKV(), 0)

	first, err := store.FirstSeen(ctx, "comgate", "AB12", "PAID")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.FirstSeen(ctx, "comgate", "AB12", "PAID")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := store.FirstSeen(ctx, "comgate", "AB12", "CANCELLED")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestSaveRequiresTransactionID(t *testing.T) {
	store := NewSessionStore(newMemKV(), time.Hour)
	assert.Error(t, store.Save(context.Background(), &models.PaymentSession{}))
}
