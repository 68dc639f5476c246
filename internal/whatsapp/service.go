// Package whatsapp ties UAZAPI instances to the store: provisioning,
// pairing, group sync and message delivery.
package whatsapp

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/uazapi"
)

// Gateway is the subset of the UAZAPI client the service needs.
type Gateway interface {
	InitInstance(ctx context.Context, name string) (*uazapi.Provisioned, error)
	Connect(ctx context.Context, token, phone string) (*uazapi.State, error)
	Status(ctx context.Context, token string) (*uazapi.State, error)
	SetWebhook(ctx context.Context, token, url string) error
	ListGroups(ctx context.Context, token string) ([]uazapi.Group, error)
	SendText(ctx context.Context, token, number, text string) error
}

// ErrNotConnected is returned when sending through an instance that is not paired.
var ErrNotConnected = errors.New("instance is not connected")

// Service manages WhatsApp instances and groups for organizations.
type Service struct {
	db             *store.DB
	gw             Gateway
	webhookBaseURL string
	log            *zap.Logger
}

// NewService returns a Service. webhookBaseURL is the public address UAZAPI
// delivers events to; empty disables webhook registration.
func NewService(db *store.DB, gw Gateway, webhookBaseURL string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, gw: gw, webhookBaseURL: strings.TrimRight(webhookBaseURL, "/"), log: log.Named("whatsapp")}
}

// WebhookURL is where UAZAPI should post events for inst.
func (s *Service) WebhookURL(inst *store.Instance) string {
	if s.webhookBaseURL == "" {
		return ""
	}
	return s.webhookBaseURL + "/api/webhooks/uazapi/" + url.PathEscape(inst.ID) + "?secret=" + url.QueryEscape(inst.WebhookSecret)
}

// CreateInstance provisions an instance on the gateway and stores it.
func (s *Service) CreateInstance(ctx context.Context, orgID, name string) (*store.Instance, error) {
	p, err := s.gw.InitInstance(ctx, name)
	if err != nil {
		return nil, err
	}
	inst := &store.Instance{OrganizationID: orgID, Name: name, ProviderToken: p.Token}
	if err := s.db.CreateInstance(ctx, inst); err != nil {
		return nil, errors.Wrap(err, "store instance")
	}
	if hook := s.WebhookURL(inst); hook != "" {
		if err := s.gw.SetWebhook(ctx, inst.ProviderToken, hook); err != nil {
			// The instance is usable without events; automation stays off until retried.
			s.log.Warn("webhook registration failed", zap.String("instance_id", inst.ID), zap.Error(err))
		}
	}
	s.log.Info("instance created", zap.String("instance_id", inst.ID), zap.String("organization_id", orgID))
	return inst, nil
}

// Connect starts pairing and stores the returned QR or pair code.
func (s *Service) Connect(ctx context.Context, orgID, instanceID, phone string) (*store.Instance, error) {
	inst, err := s.db.GetInstance(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	st, err := s.gw.Connect(ctx, inst.ProviderToken, phone)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, inst, st)
}

// RefreshStatus polls the gateway for the current state.
func (s *Service) RefreshStatus(ctx context.Context, orgID, instanceID string) (*store.Instance, error) {
	inst, err := s.db.GetInstance(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	st, err := s.gw.Status(ctx, inst.ProviderToken)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, inst, st)
}

// RecordStatus stores a status pushed by a connection webhook.
func (s *Service) RecordStatus(ctx context.Context, inst *store.Instance, status string) error {
	c := store.Connection{Status: status, Phone: inst.Phone}
	if status != "connected" {
		c.QRCode, c.PairCode = inst.QRCode, inst.PairCode
	}
	return s.db.UpdateInstanceConnection(ctx, inst.ID, c)
}

func (s *Service) apply(ctx context.Context, inst *store.Instance, st *uazapi.State) (*store.Instance, error) {
	c := store.Connection{Status: st.Status, Phone: st.Phone, PairCode: st.PairCode}
	if st.Status != "connected" {
		c.QRCode = QRDataURL(st.QRCode)
	} else {
		c.PairCode = ""
	}
	if err := s.db.UpdateInstanceConnection(ctx, inst.ID, c); err != nil {
		return nil, err
	}
	inst.Status, inst.Phone, inst.QRCode, inst.PairCode = c.Status, c.Phone, c.QRCode, c.PairCode
	return inst, nil
}

// QRDataURL returns payload as a PNG data URL. Payloads that already are
// images pass through; raw pairing strings are rendered.
func QRDataURL(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" || strings.HasPrefix(payload, "data:image/") {
		return payload
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// SyncResult reports how many groups were refreshed per instance.
type SyncResult struct {
	InstanceID string `json:"instance_id"`
	Groups     int    `json:"groups"`
	Error      string `json:"error,omitempty"`
}

// SyncGroups pulls the group list of one instance, or of every connected
// instance of the organization when instanceID is empty.
func (s *Service) SyncGroups(ctx context.Context, orgID, instanceID string) ([]SyncResult, error) {
	var targets []store.Instance
	if instanceID != "" {
		inst, err := s.db.GetInstance(ctx, orgID, instanceID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *inst)
	} else {
		all, err := s.db.ListInstances(ctx, orgID)
		if err != nil {
			return nil, err
		}
		for _, inst := range all {
			if inst.Status == "connected" {
				targets = append(targets, inst)
			}
		}
	}
	out := make([]SyncResult, 0, len(targets))
	for _, inst := range targets {
		res := SyncResult{InstanceID: inst.ID}
		groups, err := s.gw.ListGroups(ctx, inst.ProviderToken)
		if err == nil {
			snap := make([]store.GroupSnapshot, 0, len(groups))
			for _, g := range groups {
				snap = append(snap, store.GroupSnapshot{JID: g.JID, Name: g.Name, Participants: g.Participants})
			}
			res.Groups, err = s.db.UpsertGroups(ctx, orgID, inst.ID, snap)
		}
		if err != nil {
			if instanceID != "" {
				return nil, err
			}
			res.Error = err.Error()
			s.log.Warn("group sync failed", zap.String("instance_id", inst.ID), zap.Error(err))
		}
		out = append(out, res)
	}
	return out, nil
}

// SendToGroup posts text into a stored group through its instance.
func (s *Service) SendToGroup(ctx context.Context, orgID, groupID, text string) error {
	g, err := s.db.GetGroup(ctx, orgID, groupID)
	if err != nil {
		return err
	}
	inst, err := s.db.GetInstance(ctx, orgID, g.InstanceID)
	if err != nil {
		return err
	}
	return s.Reply(ctx, inst, g.JID, text)
}

// Reply sends text to chatID through inst without a group lookup.
func (s *Service) Reply(ctx context.Context, inst *store.Instance, chatID, text string) error {
	if inst.Status != "connected" {
		return errors.Wrapf(ErrNotConnected, "instance %s is %s", inst.Name, inst.Status)
	}
	return s.gw.SendText(ctx, inst.ProviderToken, chatID, text)
}

// Delivery is the outcome of a send to one group.
type Delivery struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
	Error   string `json:"error,omitempty"`
}

// SendToCategory posts text to every group in a category. Per-group failures
// are reported, not returned.
func (s *Service) SendToCategory(ctx context.Context, orgID, categoryID, text string) ([]Delivery, error) {
	if _, err := s.db.GetCategory(ctx, orgID, categoryID); err != nil {
		return nil, err
	}
	groups, err := s.db.ListGroups(ctx, store.GroupFilter{OrganizationID: orgID, CategoryID: categoryID})
	if err != nil {
		return nil, err
	}
	out := make([]Delivery, 0, len(groups))
	for _, g := range groups {
		d := Delivery{GroupID: g.ID, Name: g.Name}
		if err := s.SendToGroup(ctx, orgID, g.ID, text); err != nil {
			d.Error = err.Error()
		}
		out = append(out, d)
	}
	return out, nil
}
