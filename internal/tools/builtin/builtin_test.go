package builtin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagroups/wagroups/internal/automation"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/tools"
	"github.com/wagroups/wagroups/internal/uazapi"
	"github.com/wagroups/wagroups/internal/whatsapp"
)

type stubGateway struct{ sent int }

func (s *stubGateway) InitInstance(ctx context.Context, name string) (*uazapi.Provisioned, error) {
	return &uazapi.Provisioned{Token: "tok"}, nil
}
func (s *stubGateway) Connect(ctx context.Context, token, phone string) (*uazapi.State, error) {
	return &uazapi.State{Status: "connecting", PairCode: "ABCD-1234"}, nil
}
func (s *stubGateway) Status(ctx context.Context, token string) (*uazapi.State, error) {
	return &uazapi.State{Status: "connected"}, nil
}
func (s *stubGateway) SetWebhook(ctx context.Context, token, url string) error { return nil }
func (s *stubGateway) ListGroups(ctx context.Context, token string) ([]uazapi.Group, error) {
	return []uazapi.Group{{JID: "1@g.us", Name: "Sales"}}, nil
}
func (s *stubGateway) SendText(ctx context.Context, token, number, text string) error {
	s.sent++
	return nil
}

type env struct {
	reg    *Registry
	db     *store.DB
	gw     *stubGateway
	caller core.Caller
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	org, err := db.CreateOrganization(ctx, "Acme", "u1")
	require.NoError(t, err)
	gw := &stubGateway{}
	wa := whatsapp.NewService(db, gw, "", nil)
	eng, err := automation.NewEngine(db, wa, nil)
	require.NoError(t, err)
	return &env{
		reg:    New(Deps{DB: db, WhatsApp: wa, Automation: eng}),
		db:     db,
		gw:     gw,
		caller: core.Caller{UserID: "u1", OrganizationID: org.ID},
	}
}

func (e *env) call(t *testing.T, name string, args string) (map[string]any, error) {
	t.Helper()
	h, ok := e.reg.Handler(name)
	require.True(t, ok, "no handler for %s", name)
	out, err := h(context.Background(), e.caller, json.RawMessage(args))
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m, nil
}

func TestEveryCatalogToolHasHandler(t *testing.T) {
	e := newEnv(t)
	for _, tool := range tools.All() {
		_, ok := e.reg.Handler(tool.Name)
		assert.True(t, ok, tool.Name)
	}
	assert.Len(t, e.reg.Names(), len(tools.All()))
}

func TestValidation(t *testing.T) {
	e := newEnv(t)
	cases := map[string]string{
		"create_category":    `{"color":"#fff"}`,
		"send_group_message": `{"text":"hi"}`,
		"schedule_message":   `{"group_id":"g","category_id":"c","text":"x","send_at":"2030-01-01T00:00:00Z"}`,
		"create_trigger":     `{"name":"t","response":"r"}`,
		"connect_instance":   `{"instance_id":"i","phone":"abc"}`,
		"list_groups":        `{not json`,
	}
	for name, args := range cases {
		_, err := e.call(t, name, args)
		assert.True(t, errors.Is(err, ErrInvalidArgs), "%s: %v", name, err)
	}

	_, err := e.call(t, "send_group_message", `{"text":"hi"}`)
	assert.Contains(t, err.Error(), "group_id or category_id is required")
}

func TestCategoriesAndGroups(t *testing.T) {
	e := newEnv(t)
	out, err := e.call(t, "create_instance", `{"name":"main"}`)
	require.NoError(t, err)
	instID := out["instance"].(map[string]any)["id"].(string)

	out, err = e.call(t, "connect_instance", `{"instance_id":"`+instID+`","phone":"5511999999999"}`)
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", out["pair_code"])

	out, err = e.call(t, "get_instance_status", `{"instance_id":"`+instID+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "connected", out["status"])

	out, err = e.call(t, "sync_groups", `{}`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["total_groups"])

	out, err = e.call(t, "create_category", `{"name":"Clients","color":"#25D366"}`)
	require.NoError(t, err)
	catID := out["category"].(map[string]any)["id"].(string)
	_, err = e.call(t, "create_category", `{"name":"Clients"}`)
	assert.True(t, errors.Is(err, store.ErrConflict))

	out, err = e.call(t, "list_groups", `{"search":"sal"}`)
	require.NoError(t, err)
	groups := out["groups"].([]any)
	require.Len(t, groups, 1)
	groupID := groups[0].(map[string]any)["id"].(string)

	_, err = e.call(t, "assign_group_category", `{"group_id":"`+groupID+`","category_id":"`+catID+`"}`)
	require.NoError(t, err)

	out, err = e.call(t, "send_group_message", `{"category_id":"`+catID+`","text":"promo"}`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["sent"])
	assert.Equal(t, 1, e.gw.sent)

	_, err = e.call(t, "delete_category", `{"category_id":"missing"}`)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestTriggersCommandsSchedule(t *testing.T) {
	e := newEnv(t)
	_, err := e.call(t, "create_trigger", `{"name":"bad","expression":"text +","response":"x"}`)
	assert.True(t, errors.Is(err, ErrInvalidArgs))

	out, err := e.call(t, "create_trigger", `{"name":"price","keyword":"price","response":"See catalog"}`)
	require.NoError(t, err)
	trig := out["trigger"].(map[string]any)
	assert.Equal(t, `text.lowerAscii().contains("price")`, trig["expression"])

	_, err = e.call(t, "set_trigger_enabled", `{"trigger_id":"`+trig["id"].(string)+`"}`)
	assert.True(t, errors.Is(err, ErrInvalidArgs), "enabled is required")
	out, err = e.call(t, "set_trigger_enabled", `{"trigger_id":"`+trig["id"].(string)+`","enabled":false}`)
	require.NoError(t, err)
	assert.Equal(t, false, out["enabled"])

	_, err = e.call(t, "create_command", `{"keyword":"two words","response":"x"}`)
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	_, err = e.call(t, "create_command", `{"keyword":"/rules","response":"Be nice"}`)
	require.NoError(t, err)

	_, err = e.call(t, "schedule_message", `{"group_id":"other-orgs-group","text":"x","send_at":"2030-01-01T09:00:00Z"}`)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = e.call(t, "schedule_message", `{"group_id":"g","text":"x","send_at":"tomorrow"}`)
	assert.True(t, errors.Is(err, ErrInvalidArgs))

	cat, err := e.call(t, "create_category", `{"name":"All"}`)
	require.NoError(t, err)
	catID := cat["category"].(map[string]any)["id"].(string)
	out, err = e.call(t, "schedule_message", `{"category_id":"`+catID+`","text":"Good morning","send_at":"2030-01-01T09:00:00-03:00"}`)
	require.NoError(t, err)
	msgID := out["message"].(map[string]any)["id"].(string)

	out, err = e.call(t, "list_scheduled_messages", `{"status":"pending"}`)
	require.NoError(t, err)
	assert.Len(t, out["messages"].([]any), 1)

	_, err = e.call(t, "cancel_scheduled_message", `{"message_id":"`+msgID+`"}`)
	require.NoError(t, err)
	_, err = e.call(t, "cancel_scheduled_message", `{"message_id":"`+msgID+`"}`)
	assert.True(t, errors.Is(err, store.ErrNotPending))
}
