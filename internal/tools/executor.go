package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/logging"
)

const logArgRunes = 200

// Executor runs tools by POSTing to their internal endpoints with the
// trusted identity headers.
type Executor struct {
	baseURL string
	secret  string
	client  *http.Client
	log     *zap.Logger
}

// NewExecutor returns an Executor calling the API at baseURL. timeout 0 leaves
// the transport default in place.
func NewExecutor(baseURL, internalSecret string, timeout time.Duration, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  internalSecret,
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("tools"),
	}
}

// Execute implements core.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, caller core.Caller, name string, args json.RawMessage) core.ToolResult {
	route := Route(name)
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	start := time.Now()
	e.log.Info("tool call started",
		zap.String("tool", name),
		zap.String("route", route),
		zap.String("args", logging.Truncate(string(args), logArgRunes)),
	)

	status, body, err := e.post(ctx, caller, route, args)
	var res core.ToolResult
	if err != nil {
		res = core.ToolResult{Success: false, Error: "tool request failed: " + err.Error()}
	} else {
		res = normalize(status, body)
	}

	took := time.Since(start)
	if !res.Success {
		e.log.Error("tool call failed",
			zap.String("tool", name),
			zap.String("route", route),
			zap.Duration("took", took),
			zap.Int("status", status),
			zap.String("user_id", caller.UserID),
			zap.String("organization_id", caller.OrganizationID),
			zap.ByteString("args", args),
			zap.String("error", res.Error),
		)
		return res
	}
	e.log.Info("tool call completed",
		zap.String("tool", name),
		zap.String("route", route),
		zap.Duration("took", took),
		zap.String("args", logging.Truncate(string(args), logArgRunes)),
	)
	return res
}

func (e *Executor) post(ctx context.Context, caller core.Caller, route string, args json.RawMessage) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+route, bytes.NewReader(args))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(core.HeaderInternalSecret, e.secret)
	req.Header.Set(core.HeaderInternalUser, caller.UserID)
	req.Header.Set(core.HeaderInternalOrg, caller.OrganizationID)
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// normalize folds an endpoint response into the result envelope.
func normalize(status int, body []byte) core.ToolResult {
	body = bytes.TrimSpace(body)
	var doc map[string]json.RawMessage
	parsed := len(body) > 0 && json.Unmarshal(body, &doc) == nil

	if status < 200 || status >= 300 {
		if parsed {
			if msg := stringField(doc, "error"); msg != "" {
				return core.ToolResult{Success: false, Error: msg}
			}
			if msg := stringField(doc, "message"); msg != "" {
				return core.ToolResult{Success: false, Error: msg}
			}
		}
		msg := fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
		if !parsed && len(body) > 0 {
			msg += ": " + logging.Truncate(string(body), logArgRunes)
		}
		return core.ToolResult{Success: false, Error: msg}
	}

	if len(body) == 0 {
		return core.ToolResult{Success: true}
	}
	if !parsed {
		if json.Valid(body) {
			return core.ToolResult{Success: true, Data: json.RawMessage(body)}
		}
		raw, _ := json.Marshal(string(body))
		return core.ToolResult{Success: true, Data: raw}
	}
	successRaw, hasSuccess := doc["success"]
	if !hasSuccess {
		return core.ToolResult{Success: true, Data: json.RawMessage(body)}
	}
	res := core.ToolResult{Success: true}
	var ok bool
	if json.Unmarshal(successRaw, &ok) == nil {
		res.Success = ok
	}
	if d, has := doc["data"]; has && string(d) != "null" {
		res.Data = d
	}
	res.Error = stringField(doc, "error")
	if !res.Success && res.Error == "" {
		res.Error = "tool reported failure"
	}
	return res
}

func stringField(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
