package builtin

import (
	"context"

	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

type createInstanceArgs struct {
	Name string `json:"name" validate:"required,max=100"`
}

type instanceArgs struct {
	InstanceID string `json:"instance_id" validate:"required"`
}

type connectInstanceArgs struct {
	InstanceID string `json:"instance_id" validate:"required"`
	Phone      string `json:"phone" validate:"omitempty,numeric,min=8,max=15"`
}

func connectionView(inst *store.Instance) map[string]any {
	out := map[string]any{
		"instance_id": inst.ID,
		"name":        inst.Name,
		"status":      inst.Status,
	}
	switch {
	case inst.Status == "connected":
		out["phone"] = inst.Phone
		out["message"] = "WhatsApp is connected."
	case inst.PairCode != "":
		out["pair_code"] = inst.PairCode
		out["message"] = "Enter the pair code in WhatsApp > Linked devices."
	case inst.QRCode != "":
		out["qr_code"] = inst.QRCode
		out["message"] = "Scan the QR code in WhatsApp > Linked devices."
	default:
		out["message"] = "Waiting for the device to link."
	}
	return out
}

func registerInstanceTools(r *Registry, d Deps) {
	r.Register("list_instances", handle(func(ctx context.Context, c core.Caller, _ *struct{}) (any, error) {
		list, err := d.DB.ListInstances(ctx, c.OrganizationID)
		if err != nil {
			return nil, err
		}
		for i := range list {
			list[i].QRCode = ""
		}
		return map[string]any{"instances": list, "count": len(list)}, nil
	}))

	r.Register("create_instance", handle(func(ctx context.Context, c core.Caller, a *createInstanceArgs) (any, error) {
		inst, err := d.WhatsApp.CreateInstance(ctx, c.OrganizationID, a.Name)
		if err != nil {
			return nil, err
		}
		return map[string]any{"instance": inst}, nil
	}))

	r.Register("connect_instance", handle(func(ctx context.Context, c core.Caller, a *connectInstanceArgs) (any, error) {
		inst, err := d.WhatsApp.Connect(ctx, c.OrganizationID, a.InstanceID, a.Phone)
		if err != nil {
			return nil, err
		}
		return connectionView(inst), nil
	}))

	r.Register("get_instance_status", handle(func(ctx context.Context, c core.Caller, a *instanceArgs) (any, error) {
		inst, err := d.WhatsApp.RefreshStatus(ctx, c.OrganizationID, a.InstanceID)
		if err != nil {
			return nil, err
		}
		return connectionView(inst), nil
	}))
}
