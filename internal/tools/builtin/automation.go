package builtin

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/wagroups/wagroups/internal/automation"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

type createTriggerArgs struct {
	Name       string `json:"name" validate:"required,max=100"`
	Keyword    string `json:"keyword" validate:"required_without=Expression,excluded_with=Expression,max=100"`
	Expression string `json:"expression" validate:"max=2000"`
	Response   string `json:"response" validate:"required,max=4096"`
	GroupID    string `json:"group_id" validate:"excluded_with=CategoryID"`
	CategoryID string `json:"category_id"`
}

type setTriggerEnabledArgs struct {
	TriggerID string `json:"trigger_id" validate:"required"`
	Enabled   *bool  `json:"enabled" validate:"required"`
}

type triggerArgs struct {
	TriggerID string `json:"trigger_id" validate:"required"`
}

type createCommandArgs struct {
	Keyword  string `json:"keyword" validate:"required,max=32"`
	Response string `json:"response" validate:"required,max=4096"`
}

type commandArgs struct {
	CommandID string `json:"command_id" validate:"required"`
}

// checkScope verifies that an optional group or category belongs to the caller.
func checkScope(ctx context.Context, db *store.DB, orgID string, groupID, categoryID *string) error {
	if groupID != nil {
		if _, err := db.GetGroup(ctx, orgID, *groupID); err != nil {
			return errors.Wrap(err, "group")
		}
	}
	if categoryID != nil {
		if _, err := db.GetCategory(ctx, orgID, *categoryID); err != nil {
			return errors.Wrap(err, "category")
		}
	}
	return nil
}

func registerAutomationTools(r *Registry, d Deps) {
	r.Register("list_triggers", handle(func(ctx context.Context, c core.Caller, _ *struct{}) (any, error) {
		list, err := d.DB.ListTriggers(ctx, c.OrganizationID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"triggers": list}, nil
	}))

	r.Register("create_trigger", handle(func(ctx context.Context, c core.Caller, a *createTriggerArgs) (any, error) {
		expr := strings.TrimSpace(a.Expression)
		if a.Keyword != "" {
			expr = automation.KeywordExpression(a.Keyword)
		}
		if _, err := d.Automation.Compile(expr); err != nil {
			return nil, invalid(err.Error())
		}
		t := &store.Trigger{
			OrganizationID: c.OrganizationID,
			Name:           a.Name,
			Expression:     expr,
			Response:       a.Response,
			GroupID:        optional(a.GroupID),
			CategoryID:     optional(a.CategoryID),
		}
		if err := checkScope(ctx, d.DB, c.OrganizationID, t.GroupID, t.CategoryID); err != nil {
			return nil, err
		}
		if err := d.DB.CreateTrigger(ctx, t); err != nil {
			return nil, err
		}
		return map[string]any{"trigger": t}, nil
	}))

	r.Register("set_trigger_enabled", handle(func(ctx context.Context, c core.Caller, a *setTriggerEnabledArgs) (any, error) {
		if err := d.DB.SetTriggerEnabled(ctx, c.OrganizationID, a.TriggerID, *a.Enabled); err != nil {
			return nil, err
		}
		return map[string]any{"trigger_id": a.TriggerID, "enabled": *a.Enabled}, nil
	}))

	r.Register("delete_trigger", handle(func(ctx context.Context, c core.Caller, a *triggerArgs) (any, error) {
		if err := d.DB.DeleteTrigger(ctx, c.OrganizationID, a.TriggerID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": a.TriggerID}, nil
	}))

	r.Register("list_commands", handle(func(ctx context.Context, c core.Caller, _ *struct{}) (any, error) {
		list, err := d.DB.ListCommands(ctx, c.OrganizationID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"commands": list}, nil
	}))

	r.Register("create_command", handle(func(ctx context.Context, c core.Caller, a *createCommandArgs) (any, error) {
		cmd := &store.Command{OrganizationID: c.OrganizationID, Keyword: a.Keyword, Response: a.Response}
		if kw := store.NormalizeKeyword(cmd.Keyword); kw == "" || strings.ContainsAny(kw, " \t\n") {
			return nil, invalid("keyword must be a single word")
		}
		if err := d.DB.CreateCommand(ctx, cmd); err != nil {
			return nil, err
		}
		return map[string]any{"command": cmd}, nil
	}))

	r.Register("delete_command", handle(func(ctx context.Context, c core.Caller, a *commandArgs) (any, error) {
		if err := d.DB.DeleteCommand(ctx, c.OrganizationID, a.CommandID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": a.CommandID}, nil
	}))
}
