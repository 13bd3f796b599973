package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory outbox with the same one-attempt semantics as the Postgres table.
type memStore struct {
	mu        sync.Mutex
	rows      []models.Notification
	insertErr error
	claimErr  error
}

func (m *memStore) InsertNotification(_ context.Context, n models.Notification) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, n)
	return nil
}

func (m *memStore) DispatchNext(ctx context.Context, fn func(context.Context, models.Notification) error) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].State != models.NotificationPending {
			continue
		}
		if err := fn(ctx, m.rows[i]); err != nil {
			m.rows[i].State = models.NotificationFailed
			m.rows[i].LastError = err.Error()
		} else {
			m.rows[i].State = models.NotificationSent
		}
		return true, nil
	}
	return false, nil
}

func (m *memStore) states() []models.NotificationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.NotificationState, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.State
	}
	return out
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
	fail map[models.NotificationKind]error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	if err := d.fail[n.Kind]; err != nil {
		return err
	}
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func TestEnqueueAssignsIDAndWakes(t *testing.T) {
	st := &memStore{}
	ob := New(st)

	err := ob.Enqueue(context.Background(), models.Notification{
		OrderID:   7,
		Kind:      models.NotifyOrderConfirmed,
		Recipient: "ada@example.com",
	})
	require.NoError(t, err)

	require.Len(t, st.rows, 1)
	assert.NotEmpty(t, st.rows[0].ID)
	assert.Equal(t, models.NotificationPending, st.rows[0].State)
	assert.False(t, st.rows[0].CreatedAt.IsZero())

	select {
	case <-ob.Wakeups():
	default:
		t.Fatal("expected a wakeup after enqueue")
	}
}

func TestEnqueueDoesNotBlockOnPendingWakeup(t *testing.T) {
	ob := New(&memStore{})
	for i := 0; i < 5; i++ {
		require.NoError(t, ob.Enqueue(context.Background(), models.Notification{Kind: models.NotifyOrderDelivered}))
	}
	assert.Len(t, ob.wake, 1)
}

func TestEnqueueReportsStoreError(t *testing.T) {
	boom := errors.New("db down")
	ob := New(&memStore{insertErr: boom})

	err := ob.Enqueue(context.Background(), models.Notification{OrderID: 3, Kind: models.NotifyPaymentApproved})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ob.wake, 0)
}

func TestCommittedWakesOnlyForStoredIntents(t *testing.T) {
	ob := New(&memStore{})

	ob.Committed(models.Notification{Kind: models.NotifyOrderConfirmed})
	assert.Len(t, ob.wake, 0)

	ob.Committed(models.Notification{Kind: models.NotifyOrderConfirmed, State: models.NotificationPending})
	assert.Len(t, ob.wake, 1)
}

func TestDrainSendsEachIntentOnce(t *testing.T) {
	st := &memStore{}
	ob := New(st)
	for _, kind := range []models.NotificationKind{models.NotifyOrderConfirmed, models.NotifyPaymentApproved, models.NotifyOrderDelivered} {
		require.NoError(t, ob.Enqueue(context.Background(), models.Notification{OrderID: 1, Kind: kind}))
	}

	d := &recordingDispatcher{fail: map[models.NotificationKind]error{
		models.NotifyPaymentApproved: errors.New("smtp refused"),
	}}
	relay := NewRelay(st, d, ob.Wakeups(), RelayConfig{BatchSize: 10})

	assert.Equal(t, 3, relay.Drain(context.Background()))
	assert.Equal(t, []models.NotificationState{
		models.NotificationSent,
		models.NotificationFailed,
		models.NotificationSent,
	}, st.states())
	assert.Equal(t, "smtp refused", st.rows[1].LastError)

	// Failed intents are not retried.
	assert.Equal(t, 0, relay.Drain(context.Background()))
	assert.Equal(t, 3, d.count())
}

func TestDrainRespectsBatchSize(t *testing.T) {
	st := &memStore{}
	ob := New(st)
	for i := 0; i < 5; i++ {
		require.NoError(t, ob.Enqueue(context.Background(), models.Notification{OrderID: int64(i), Kind: models.NotifyOrderConfirmed}))
	}

	relay := NewRelay(st, &recordingDispatcher{}, nil, RelayConfig{BatchSize: 2})
	assert.Equal(t, 2, relay.Drain(context.Background()))
	assert.Equal(t, 2, relay.Drain(context.Background()))
	assert.Equal(t, 1, relay.Drain(context.Background()))
}

func TestDrainStopsOnClaimError(t *testing.T) {
	relay := NewRelay(&memStore{claimErr: errors.New("conn reset")}, &recordingDispatcher{}, nil, RelayConfig{})
	assert.Equal(t, 0, relay.Drain(context.Background()))
}

func TestRunDrainsOnWakeupAndStops(t *testing.T) {
	st := &memStore{}
	ob := New(st)
	d := &recordingDispatcher{}
	relay := NewRelay(st, d, ob.Wakeups(), RelayConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	require.NoError(t, ob.Enqueue(context.Background(), models.Notification{OrderID: 9, Kind: models.NotifyOrderConfirmed}))
	assert.Eventually(t, func() bool { return d.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
