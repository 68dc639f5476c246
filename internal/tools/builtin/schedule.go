package builtin

import (
	"context"

	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

type listScheduledArgs struct {
	Status string `json:"status" validate:"omitempty,oneof=pending sending sent failed cancelled"`
}

type scheduleMessageArgs struct {
	GroupID    string `json:"group_id" validate:"required_without=CategoryID,excluded_with=CategoryID"`
	CategoryID string `json:"category_id"`
	Text       string `json:"text" validate:"required,max=4096"`
	SendAt     string `json:"send_at" validate:"required"`
}

type cancelScheduledArgs struct {
	MessageID string `json:"message_id" validate:"required"`
}

func registerScheduleTools(r *Registry, d Deps) {
	r.Register("list_scheduled_messages", handle(func(ctx context.Context, c core.Caller, a *listScheduledArgs) (any, error) {
		list, err := d.DB.ListScheduledMessages(ctx, c.OrganizationID, a.Status)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": list}, nil
	}))

	r.Register("schedule_message", handle(func(ctx context.Context, c core.Caller, a *scheduleMessageArgs) (any, error) {
		at, err := parseTime(a.SendAt)
		if err != nil {
			return nil, err
		}
		m := &store.ScheduledMessage{
			OrganizationID: c.OrganizationID,
			GroupID:        optional(a.GroupID),
			CategoryID:     optional(a.CategoryID),
			Text:           a.Text,
			SendAt:         at,
			CreatedBy:      c.UserID,
		}
		if err := checkScope(ctx, d.DB, c.OrganizationID, m.GroupID, m.CategoryID); err != nil {
			return nil, err
		}
		if err := d.DB.CreateScheduledMessage(ctx, m); err != nil {
			return nil, err
		}
		return map[string]any{"message": m}, nil
	}))

	r.Register("cancel_scheduled_message", handle(func(ctx context.Context, c core.Caller, a *cancelScheduledArgs) (any, error) {
		if err := d.DB.CancelScheduledMessage(ctx, c.OrganizationID, a.MessageID); err != nil {
			return nil, err
		}
		return map[string]any{"cancelled": a.MessageID}, nil
	}))
}
