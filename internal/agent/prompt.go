package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
)

// StaticInstructions are appended to every system prompt (tool use, safety, reply style).
const StaticInstructions = `
You manage WhatsApp groups for the user's organization through tools. Use them whenever the user asks to see or change instances, groups, categories, triggers, chatbot commands or scheduled messages; never describe an API call for the user to make themselves.
Read before you write: list groups or categories to resolve names to ids instead of guessing ids.
Sending a message to a group or a category reaches real people. Confirm the exact text and target with the user before calling send_group_message or schedule_message unless they already gave both.
Trigger conditions are CEL expressions over text, sender, group and from_me, for example text.lowerAscii().contains("price"). Prefer a simple keyword when the user describes one.
Schedule times are RFC3339. When the user gives a local time without a zone, ask which zone they mean.
If a tool fails, explain the error in plain words and suggest the next step. Do not retry the same call with the same arguments.
Keep replies short. Summarize lists instead of pasting raw JSON.
`

// DefaultIdentity opens the prompt when no override file is configured.
const DefaultIdentity = "You are the WhatsApp group assistant of this workspace. You help operators connect WhatsApp numbers, organize their groups and automate messages."

// PromptBuilder assembles the system prompt for a caller's turn.
type PromptBuilder struct {
	DB       *store.DB
	Identity string
	log      *zap.Logger
}

// NewPromptBuilder loads the identity block from path when set.
func NewPromptBuilder(db *store.DB, path string, log *zap.Logger) (*PromptBuilder, error) {
	identity := DefaultIdentity
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read system prompt %s", path)
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			identity = s
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PromptBuilder{DB: db, Identity: identity, log: log}, nil
}

// Build returns identity, runtime and tenant context, then the static instructions.
// Tenant lookups are best effort; a failed read only drops that block.
func (p *PromptBuilder) Build(ctx context.Context, caller core.Caller) string {
	var b strings.Builder
	b.WriteString(p.Identity)

	fmt.Fprintf(&b, "\n\n== RUNTIME ==\nTime: %s\n", time.Now().UTC().Format(time.RFC1123))

	if p.DB != nil {
		b.WriteString(p.tenantContext(ctx, caller))
	}

	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(StaticInstructions))
	return b.String()
}

func (p *PromptBuilder) tenantContext(ctx context.Context, caller core.Caller) string {
	var b strings.Builder

	instances, err := p.DB.ListInstances(ctx, caller.OrganizationID)
	if err != nil {
		p.log.Warn("prompt: list instances", zap.String("organization_id", caller.OrganizationID), zap.Error(err))
	}
	if len(instances) > 0 {
		b.WriteString("\n== WHATSAPP INSTANCES ==\n")
		for _, inst := range instances {
			fmt.Fprintf(&b, "- %s (id %s): %s", inst.Name, inst.ID, inst.Status)
			if inst.Phone != "" {
				fmt.Fprintf(&b, ", phone %s", inst.Phone)
			}
			b.WriteString("\n")
		}
	} else if err == nil {
		b.WriteString("\n== WHATSAPP INSTANCES ==\nNone yet. Offer to create and connect one.\n")
	}

	categories, err := p.DB.ListCategories(ctx, caller.OrganizationID)
	if err != nil {
		p.log.Warn("prompt: list categories", zap.String("organization_id", caller.OrganizationID), zap.Error(err))
	}
	if len(categories) > 0 {
		b.WriteString("\n== CATEGORIES ==\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "- %s (id %s): %d groups\n", c.Name, c.ID, c.GroupCount)
		}
	}
	return b.String()
}
