package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/whatsapp"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []string
	failGroup string
	category  []whatsapp.Delivery
}

func (f *fakeSender) SendToGroup(ctx context.Context, orgID, groupID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if groupID == f.failGroup {
		return errors.New("uazapi send/text: http 500: boom")
	}
	f.sent = append(f.sent, groupID+": "+text)
	return nil
}

func (f *fakeSender) SendToCategory(ctx context.Context, orgID, categoryID, text string) ([]whatsapp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, categoryID+": "+text)
	return f.category, nil
}

type fixture struct {
	db       *store.DB
	org      *store.Organization
	groups   []store.Group
	category *store.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	org, err := db.CreateOrganization(ctx, "Acme", "alice")
	require.NoError(t, err)
	inst := &store.Instance{OrganizationID: org.ID, Name: "main", ProviderToken: "tok"}
	require.NoError(t, db.CreateInstance(ctx, inst))
	_, err = db.UpsertGroups(ctx, org.ID, inst.ID, []store.GroupSnapshot{{JID: "1@g.us", Name: "Sales"}, {JID: "2@g.us", Name: "Support"}})
	require.NoError(t, err)
	groups, err := db.ListGroups(ctx, store.GroupFilter{OrganizationID: org.ID})
	require.NoError(t, err)
	cat := &store.Category{OrganizationID: org.ID, Name: "Customers"}
	require.NoError(t, db.CreateCategory(ctx, cat))
	return &fixture{db: db, org: org, groups: groups, category: cat}
}

func (f *fixture) schedule(t *testing.T, groupID, categoryID *string, text string, at time.Time) *store.ScheduledMessage {
	t.Helper()
	m := &store.ScheduledMessage{OrganizationID: f.org.ID, GroupID: groupID, CategoryID: categoryID, Text: text, SendAt: at, CreatedBy: "alice"}
	require.NoError(t, f.db.CreateScheduledMessage(context.Background(), m))
	return m
}

func (f *fixture) status(t *testing.T, id string) *store.ScheduledMessage {
	t.Helper()
	m, err := f.db.GetScheduledMessage(context.Background(), f.org.ID, id)
	require.NoError(t, err)
	return m
}

func newTestRunner(t *testing.T, db Store, sender Sender) *Runner {
	t.Helper()
	r, err := NewRunner(db, sender, config.SchedulerConfig{Spec: "@every 1s", Workers: 2, BatchSize: 10}, nil)
	require.NoError(t, err)
	t.Cleanup(r.pool.Release)
	return r
}

func TestTick_SendsDueMessagesOnce(t *testing.T) {
	f := newFixture(t)
	sender := &fakeSender{failGroup: f.groups[1].ID}
	r := newTestRunner(t, f.db, sender)

	past := time.Now().Add(-time.Minute)
	ok := f.schedule(t, &f.groups[0].ID, nil, "hello sales", past)
	bad := f.schedule(t, &f.groups[1].ID, nil, "hello support", past)
	later := f.schedule(t, &f.groups[0].ID, nil, "tomorrow", time.Now().Add(24*time.Hour))

	assert.Equal(t, 2, r.Tick(context.Background()))
	assert.Equal(t, 0, r.Tick(context.Background()))

	assert.Equal(t, []string{f.groups[0].ID + ": hello sales"}, sender.sent)
	got := f.status(t, ok.ID)
	assert.Equal(t, store.ScheduledSent, got.Status)
	assert.NotNil(t, got.SentAt)
	assert.Equal(t, 1, got.Attempts)

	failed := f.status(t, bad.ID)
	assert.Equal(t, store.ScheduledFailed, failed.Status)
	assert.Contains(t, failed.LastError, "http 500: boom")

	assert.Equal(t, store.ScheduledPending, f.status(t, later.ID).Status)
}

func TestTick_CategoryDelivery(t *testing.T) {
	f := newFixture(t)
	sender := &fakeSender{category: []whatsapp.Delivery{
		{GroupID: f.groups[0].ID, Name: "Sales"},
		{GroupID: f.groups[1].ID, Name: "Support", Error: "instance is not connected"},
	}}
	r := newTestRunner(t, f.db, sender)
	partial := f.schedule(t, nil, &f.category.ID, "weekly promo", time.Now().Add(-time.Second))
	require.Equal(t, 1, r.Tick(context.Background()))
	assert.Equal(t, store.ScheduledSent, f.status(t, partial.ID).Status)

	sender.category = []whatsapp.Delivery{{GroupID: f.groups[1].ID, Name: "Support", Error: "instance is not connected"}}
	none := f.schedule(t, nil, &f.category.ID, "weekly promo", time.Now().Add(-time.Second))
	require.Equal(t, 1, r.Tick(context.Background()))
	got := f.status(t, none.ID)
	assert.Equal(t, store.ScheduledFailed, got.Status)
	assert.Equal(t, "Support: instance is not connected", got.LastError)

	sender.category = nil
	empty := f.schedule(t, nil, &f.category.ID, "nobody", time.Now().Add(-time.Second))
	require.Equal(t, 1, r.Tick(context.Background()))
	assert.Equal(t, "category has no groups", f.status(t, empty.ID).LastError)
}

func TestNewRunner_RejectsBadSpec(t *testing.T) {
	_, err := NewRunner(nil, nil, config.SchedulerConfig{Spec: "every now and then"}, nil)
	assert.Error(t, err)
}

func TestRun_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	r, err := NewRunner(f.db, &fakeSender{}, config.SchedulerConfig{Spec: "@every 1h"}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

// blockingSender holds every send until its context ends.
type blockingSender struct {
	started chan struct{}
}

func (b *blockingSender) SendToGroup(ctx context.Context, orgID, groupID, text string) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingSender) SendToCategory(ctx context.Context, orgID, categoryID, text string) ([]whatsapp.Delivery, error) {
	return nil, errors.New("unexpected category send")
}

func TestTick_CancelledMidDeliveryIsMarkedFailed(t *testing.T) {
	f := newFixture(t)
	sender := &blockingSender{started: make(chan struct{})}
	r := newTestRunner(t, f.db, sender)
	m := f.schedule(t, &f.groups[0].ID, nil, "shutting down", time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- r.Tick(ctx) }()

	select {
	case <-sender.started:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery never started")
	}
	cancel()
	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not return")
	}

	got := f.status(t, m.ID)
	assert.Equal(t, store.ScheduledFailed, got.Status)
	assert.Contains(t, got.LastError, "context canceled")
}

func TestTick_FailsStaleClaims(t *testing.T) {
	f := newFixture(t)
	r := newTestRunner(t, f.db, &fakeSender{})
	m := f.schedule(t, &f.groups[0].ID, nil, "claimed before a crash", time.Now().Add(-time.Minute))
	claimed, err := f.db.ClaimDueMessages(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Within the lease the claim is left alone.
	assert.Equal(t, 0, r.Tick(context.Background()))
	assert.Equal(t, store.ScheduledSending, f.status(t, m.ID).Status)

	r.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	assert.Equal(t, 0, r.Tick(context.Background()))
	got := f.status(t, m.ID)
	assert.Equal(t, store.ScheduledFailed, got.Status)
	assert.Equal(t, store.InterruptedReason, got.LastError)
}
