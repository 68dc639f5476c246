package builtin

import (
	"context"

	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

const (
	defaultGroupLimit = 100
	maxGroupLimit     = 500
)

type listGroupsArgs struct {
	InstanceID string `json:"instance_id"`
	CategoryID string `json:"category_id"`
	Search     string `json:"search" validate:"max=100"`
	Limit      int    `json:"limit" validate:"min=0"`
}

type syncGroupsArgs struct {
	InstanceID string `json:"instance_id"`
}

type sendGroupMessageArgs struct {
	GroupID    string `json:"group_id" validate:"required_without=CategoryID,excluded_with=CategoryID"`
	CategoryID string `json:"category_id"`
	Text       string `json:"text" validate:"required,max=4096"`
}

type createCategoryArgs struct {
	Name        string `json:"name" validate:"required,max=60"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description" validate:"max=500"`
}

type categoryArgs struct {
	CategoryID string `json:"category_id" validate:"required"`
}

type assignCategoryArgs struct {
	GroupID    string `json:"group_id" validate:"required"`
	CategoryID string `json:"category_id"`
}

func registerGroupTools(r *Registry, d Deps) {
	r.Register("list_groups", handle(func(ctx context.Context, c core.Caller, a *listGroupsArgs) (any, error) {
		limit := a.Limit
		if limit == 0 {
			limit = defaultGroupLimit
		}
		if limit > maxGroupLimit {
			limit = maxGroupLimit
		}
		groups, err := d.DB.ListGroups(ctx, store.GroupFilter{
			OrganizationID: c.OrganizationID,
			InstanceID:     a.InstanceID,
			CategoryID:     a.CategoryID,
			Search:         a.Search,
			Limit:          limit,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"groups": groups, "count": len(groups)}, nil
	}))

	r.Register("sync_groups", handle(func(ctx context.Context, c core.Caller, a *syncGroupsArgs) (any, error) {
		results, err := d.WhatsApp.SyncGroups(ctx, c.OrganizationID, a.InstanceID)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, res := range results {
			total += res.Groups
		}
		return map[string]any{"instances": results, "total_groups": total}, nil
	}))

	r.Register("send_group_message", handle(func(ctx context.Context, c core.Caller, a *sendGroupMessageArgs) (any, error) {
		if a.GroupID != "" {
			if err := d.WhatsApp.SendToGroup(ctx, c.OrganizationID, a.GroupID, a.Text); err != nil {
				return nil, err
			}
			return map[string]any{"sent": 1, "failed": 0}, nil
		}
		deliveries, err := d.WhatsApp.SendToCategory(ctx, c.OrganizationID, a.CategoryID, a.Text)
		if err != nil {
			return nil, err
		}
		failed := 0
		for _, dl := range deliveries {
			if dl.Error != "" {
				failed++
			}
		}
		return map[string]any{"sent": len(deliveries) - failed, "failed": failed, "deliveries": deliveries}, nil
	}))

	r.Register("list_categories", handle(func(ctx context.Context, c core.Caller, _ *struct{}) (any, error) {
		cats, err := d.DB.ListCategories(ctx, c.OrganizationID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"categories": cats}, nil
	}))

	r.Register("create_category", handle(func(ctx context.Context, c core.Caller, a *createCategoryArgs) (any, error) {
		cat := &store.Category{OrganizationID: c.OrganizationID, Name: a.Name, Color: a.Color, Description: a.Description}
		if err := d.DB.CreateCategory(ctx, cat); err != nil {
			return nil, err
		}
		return map[string]any{"category": cat}, nil
	}))

	r.Register("delete_category", handle(func(ctx context.Context, c core.Caller, a *categoryArgs) (any, error) {
		if err := d.DB.DeleteCategory(ctx, c.OrganizationID, a.CategoryID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": a.CategoryID}, nil
	}))

	r.Register("assign_group_category", handle(func(ctx context.Context, c core.Caller, a *assignCategoryArgs) (any, error) {
		cat := optional(a.CategoryID)
		if err := d.DB.SetGroupCategory(ctx, c.OrganizationID, a.GroupID, cat); err != nil {
			return nil, err
		}
		return map[string]any{"group_id": a.GroupID, "category_id": cat}, nil
	}))
}
