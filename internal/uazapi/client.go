// Package uazapi is a small client for the UAZAPI WhatsApp gateway. Instance
// management uses the server admin token; everything else is authorized with
// the per-instance token returned at provisioning time.
package uazapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wagroups/wagroups/internal/config"
)

// Error is a non-2xx answer from the gateway.
type Error struct {
	Op     string
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("uazapi %s: http %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to one UAZAPI server.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
	// sendLimiter paces outbound messages across all instances.
	sendLimiter *rate.Limiter
	log         *zap.Logger
}

// New builds a client from configuration.
func New(cfg config.UAZAPIConfig, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 35 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		adminToken:  strings.TrimSpace(cfg.AdminToken),
		httpClient:  &http.Client{Timeout: timeout},
		sendLimiter: rate.NewLimiter(limit, 1),
		log:         log.Named("uazapi"),
	}
}

// State is the connection state reported for an instance.
type State struct {
	Status   string `json:"status"`
	Phone    string `json:"phone,omitempty"`
	QRCode   string `json:"qr_code,omitempty"`
	PairCode string `json:"pair_code,omitempty"`
}

// Provisioned is the result of creating an instance on the server.
type Provisioned struct {
	Token      string
	Name       string
	ProviderID string
}

// Group is a WhatsApp group as listed by the gateway.
type Group struct {
	JID          string
	Name         string
	Participants int
}

// InitInstance creates a new instance and returns its token.
func (c *Client) InitInstance(ctx context.Context, name string) (*Provisioned, error) {
	if c.adminToken == "" {
		return nil, errors.New("uazapi admin token is not configured")
	}
	body, err := c.do(ctx, "init", http.MethodPost, "/instance/init", map[string]string{"admintoken": c.adminToken},
		map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	p := &Provisioned{
		Token:      pickString(body, "token", "instance_token", "instanceToken", "apiToken"),
		Name:       pickString(body, "name", "instance_name", "instanceName"),
		ProviderID: pickString(body, "instance_id", "instanceId", "id"),
	}
	if p.Token == "" {
		return nil, errors.New("uazapi init: response carried no instance token")
	}
	return p, nil
}

// Connect starts pairing. With phone set the gateway answers with a pair code,
// otherwise with a QR payload.
func (c *Client) Connect(ctx context.Context, token, phone string) (*State, error) {
	payload := map[string]any{}
	if phone != "" {
		payload["phone"] = phone
	}
	body, err := c.do(ctx, "connect", http.MethodPost, "/instance/connect", map[string]string{"token": token}, payload)
	if err != nil {
		return nil, err
	}
	return stateFrom(body), nil
}

// Status fetches the current connection state.
func (c *Client) Status(ctx context.Context, token string) (*State, error) {
	body, err := c.do(ctx, "status", http.MethodGet, "/instance/status", map[string]string{"token": token}, nil)
	if err != nil {
		return nil, err
	}
	return stateFrom(body), nil
}

// SetWebhook points the instance's message events at url.
func (c *Client) SetWebhook(ctx context.Context, token, url string) error {
	_, err := c.do(ctx, "webhook", http.MethodPost, "/webhook", map[string]string{"token": token}, map[string]any{
		"url":                 url,
		"enabled":             true,
		"events":              []string{"messages", "connection"},
		"excludeMessages":     []string{"wasSentByApi"},
		"addUrlEvents":        false,
		"addUrlTypesMessages": false,
	})
	return err
}

// ListGroups returns every group the instance participates in.
func (c *Client) ListGroups(ctx context.Context, token string) ([]Group, error) {
	body, err := c.do(ctx, "group list", http.MethodGet, "/group/list?noparticipants=false", map[string]string{"token": token}, nil)
	if err != nil {
		return nil, err
	}
	return groupsFrom(body), nil
}

// SendText delivers text to a chat (group JID or phone number). Calls are
// paced by the client's send limiter.
func (c *Client) SendText(ctx context.Context, token, number, text string) error {
	if err := c.sendLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "uazapi send: rate limiter")
	}
	_, err := c.do(ctx, "send text", http.MethodPost, "/send/text", map[string]string{"token": token}, map[string]any{
		"number": number,
		"text":   text,
	})
	return err
}

// do performs a JSON request and returns the decoded body. Arrays and scalars
// are wrapped under "items" and "value" so callers always get a map.
func (c *Client) do(ctx context.Context, op, method, path string, headers map[string]string, payload any) (map[string]any, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "uazapi %s: encode", op)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "uazapi %s", op)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v = strings.TrimSpace(v); v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "uazapi %s", op)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	c.log.Debug("request", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	parsed := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return parsed, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		parsed["raw"] = strings.TrimSpace(string(raw))
		return parsed, nil
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		parsed["items"] = t
	default:
		parsed["value"] = t
	}
	return parsed, nil
}
