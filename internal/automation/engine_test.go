package automation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/uazapi"
)

type recordingReplier struct {
	replies []string
}

func (r *recordingReplier) Reply(ctx context.Context, inst *store.Instance, chatID, text string) error {
	r.replies = append(r.replies, chatID+":"+text)
	return nil
}

type fixture struct {
	db     *store.DB
	engine *Engine
	rep    *recordingReplier
	org    string
	inst   *store.Instance
	group  *store.Group
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "auto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	org, err := db.CreateOrganization(ctx, "Acme", "u1")
	require.NoError(t, err)
	inst := &store.Instance{OrganizationID: org.ID, Name: "main", Status: "connected"}
	require.NoError(t, db.CreateInstance(ctx, inst))
	_, err = db.UpsertGroups(ctx, org.ID, inst.ID, []store.GroupSnapshot{{JID: "1@g.us", Name: "Sales"}})
	require.NoError(t, err)
	g, err := db.GetGroupByJID(ctx, inst.ID, "1@g.us")
	require.NoError(t, err)
	rep := &recordingReplier{}
	e, err := NewEngine(db, rep, nil)
	require.NoError(t, err)
	return &fixture{db: db, engine: e, rep: rep, org: org.ID, inst: inst, group: g}
}

func msg(text string) *uazapi.Event {
	return &uazapi.Event{Kind: uazapi.EventMessage, ChatID: "1@g.us", Sender: "5511@s.whatsapp.net", Text: text, IsGroup: true}
}

func TestCompile(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Compile(KeywordExpression("Price"))
	require.NoError(t, err)
	_, err = f.engine.Compile(`text.startsWith("hi") && group == "Sales"`)
	require.NoError(t, err)

	_, err = f.engine.Compile(`text +`)
	assert.True(t, errors.Is(err, ErrInvalidExpression))
	_, err = f.engine.Compile(`text.size()`)
	assert.True(t, errors.Is(err, ErrInvalidExpression), "non-boolean expressions are rejected")
	_, err = f.engine.Compile(`unknown_var == "x"`)
	assert.True(t, errors.Is(err, ErrInvalidExpression))
}

func TestHandleMessage_TriggerRepliesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := &store.Trigger{OrganizationID: f.org, Name: "price", Expression: KeywordExpression("price"), Response: "See our catalog"}
	require.NoError(t, f.db.CreateTrigger(ctx, tr))
	other := &store.Trigger{OrganizationID: f.org, Name: "also", Expression: `text.contains("PRICE")`, Response: "dup"}
	require.NoError(t, f.db.CreateTrigger(ctx, other))

	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, msg("What is the PRICE?")))
	assert.Len(t, f.rep.replies, 1)

	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, msg("hello")))
	assert.Len(t, f.rep.replies, 1)

	list, err := f.db.ListTriggers(ctx, f.org)
	require.NoError(t, err)
	fired := 0
	for _, x := range list {
		fired += x.FireCount
	}
	assert.Equal(t, 1, fired)
}

func TestHandleMessage_IgnoresOwnAndDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := &store.Trigger{OrganizationID: f.org, Name: "any", Expression: "true", Response: "pong"}
	require.NoError(t, f.db.CreateTrigger(ctx, tr))

	own := msg("ping")
	own.FromMe = true
	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, own))
	direct := msg("ping")
	direct.IsGroup = false
	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, direct))
	unknown := msg("ping")
	unknown.ChatID = "999@g.us"
	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, unknown))
	assert.Empty(t, f.rep.replies)

	require.NoError(t, f.db.SetTriggerEnabled(ctx, f.org, tr.ID, false))
	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, msg("ping")))
	assert.Empty(t, f.rep.replies)
}

func TestHandleMessage_Command(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.CreateCommand(ctx, &store.Command{OrganizationID: f.org, Keyword: "rules", Response: "Be nice"}))
	require.NoError(t, f.db.CreateTrigger(ctx, &store.Trigger{OrganizationID: f.org, Name: "any", Expression: "true", Response: "trigger"}))

	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, msg("/Rules please")))
	assert.Equal(t, []string{"1@g.us:Be nice"}, f.rep.replies)

	// Unknown commands fall through to triggers.
	require.NoError(t, f.engine.HandleMessage(ctx, f.inst, msg("/unknown")))
	assert.Equal(t, []string{"1@g.us:Be nice", "1@g.us:trigger"}, f.rep.replies)
}
