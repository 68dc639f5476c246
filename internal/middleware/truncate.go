package middleware

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/wagroups/wagroups/internal/core"
)

// suffixReserve keeps room for the truncation note inside maxRunes.
const suffixReserve = 50

// TruncatingExecutor wraps a ToolExecutor and caps the result data at maxRunes (0 = no truncation).
type TruncatingExecutor struct {
	next     core.ToolExecutor
	maxRunes int
}

// NewTruncatingExecutor returns an executor that truncates results from next.
func NewTruncatingExecutor(next core.ToolExecutor, maxRunes int) *TruncatingExecutor {
	return &TruncatingExecutor{next: next, maxRunes: maxRunes}
}

// Execute runs the inner executor. Oversized data is replaced by a JSON
// string holding its head and a note with the original size, so the
// envelope stays valid JSON.
func (t *TruncatingExecutor) Execute(ctx context.Context, caller core.Caller, name string, args json.RawMessage) core.ToolResult {
	res := t.next.Execute(ctx, caller, name, args)
	if t.maxRunes <= 0 || len(res.Data) == 0 {
		return res
	}
	r := []rune(string(res.Data))
	if len(r) <= t.maxRunes {
		return res
	}
	keep := t.maxRunes - suffixReserve
	if keep <= 0 {
		keep = 1
	}
	preview := string(r[:keep]) + "\n...[output truncated, total " + strconv.Itoa(len(r)) + " runes]"
	b, err := json.Marshal(preview)
	if err != nil {
		return res
	}
	res.Data = b
	return res
}
