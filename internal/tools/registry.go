package tools

import (
	"strings"

	"github.com/wagroups/wagroups/internal/core"
)

// Tool is one catalog entry: what the model sees about an operation.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Definition returns the entry in function-calling form.
func (t Tool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Type: "function",
		Function: core.FunctionSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		},
	}
}

// RoutePrefix is where tool endpoints are mounted.
const RoutePrefix = "/api/mcp/tools/"

// Route maps a tool name to its internal endpoint path. It does not consult
// the catalog.
func Route(name string) string {
	return RoutePrefix + strings.ReplaceAll(name, "_", "-")
}

func obj(required []string, props map[string]interface{}) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{"type": "object", "properties": props, "required": required}
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

var catalog = []Tool{
	{
		Name:        "list_instances",
		Description: "List the organization's WhatsApp instances with their connection status.",
		Parameters:  obj(nil, map[string]interface{}{}),
	},
	{
		Name:        "create_instance",
		Description: "Create a new WhatsApp instance. Connect it afterwards with connect_instance.",
		Parameters: obj([]string{"name"}, map[string]interface{}{
			"name": str("Display name for the instance"),
		}),
	},
	{
		Name:        "connect_instance",
		Description: "Start connecting an instance to WhatsApp. Returns a QR code image (data URL) to scan, or a pair code when a phone number is given.",
		Parameters: obj([]string{"instance_id"}, map[string]interface{}{
			"instance_id": str("Instance ID"),
			"phone":       str("Phone number with country code, digits only, to receive a pair code instead of a QR code"),
		}),
	},
	{
		Name:        "get_instance_status",
		Description: "Refresh and return the connection status of an instance.",
		Parameters: obj([]string{"instance_id"}, map[string]interface{}{
			"instance_id": str("Instance ID"),
		}),
	},
	{
		Name:        "list_groups",
		Description: "List WhatsApp groups. Optionally filter by instance or category, or search by name.",
		Parameters: obj(nil, map[string]interface{}{
			"instance_id": str("Only groups of this instance"),
			"category_id": str("Only groups in this category"),
			"search":      str("Case-insensitive substring of the group name"),
			"limit":       map[string]interface{}{"type": "integer", "description": "Maximum number of groups (default 100)"},
		}),
	},
	{
		Name:        "sync_groups",
		Description: "Fetch the current group list from WhatsApp and store it. Without instance_id every connected instance is synced.",
		Parameters: obj(nil, map[string]interface{}{
			"instance_id": str("Instance ID"),
		}),
	},
	{
		Name:        "send_group_message",
		Description: "Send a text message now to one group, or to every group of a category.",
		Parameters: obj([]string{"text"}, map[string]interface{}{
			"group_id":    str("Target group ID"),
			"category_id": str("Target every group in this category"),
			"text":        str("Message text"),
		}),
	},
	{
		Name:        "list_categories",
		Description: "List group categories with the number of groups in each.",
		Parameters:  obj(nil, map[string]interface{}{}),
	},
	{
		Name:        "create_category",
		Description: "Create a category for organizing groups.",
		Parameters: obj([]string{"name"}, map[string]interface{}{
			"name":        str("Category name, unique in the organization"),
			"color":       str("Hex color, e.g. #25D366"),
			"description": str("Free-text description"),
		}),
	},
	{
		Name:        "delete_category",
		Description: "Delete a category. Its groups become uncategorized.",
		Parameters: obj([]string{"category_id"}, map[string]interface{}{
			"category_id": str("Category ID"),
		}),
	},
	{
		Name:        "assign_group_category",
		Description: "Put a group into a category, or remove it from its category when category_id is empty.",
		Parameters: obj([]string{"group_id"}, map[string]interface{}{
			"group_id":    str("Group ID"),
			"category_id": str("Category ID; empty to clear"),
		}),
	},
	{
		Name:        "list_triggers",
		Description: "List automation triggers.",
		Parameters:  obj(nil, map[string]interface{}{}),
	},
	{
		Name: "create_trigger",
		Description: "Create an automatic reply. Give either a keyword (case-insensitive match anywhere in the message) " +
			"or a CEL expression over text, sender, group and from_me. Scope it to a group or a category, or leave both empty for all groups.",
		Parameters: obj([]string{"name", "response"}, map[string]interface{}{
			"name":        str("Trigger name"),
			"keyword":     str("Keyword to look for"),
			"expression":  str(`CEL condition, e.g. text.lowerAscii().startsWith("hello")`),
			"response":    str("Reply text"),
			"group_id":    str("Only this group"),
			"category_id": str("Only groups of this category"),
		}),
	},
	{
		Name:        "set_trigger_enabled",
		Description: "Enable or disable a trigger.",
		Parameters: obj([]string{"trigger_id", "enabled"}, map[string]interface{}{
			"trigger_id": str("Trigger ID"),
			"enabled":    map[string]interface{}{"type": "boolean"},
		}),
	},
	{
		Name:        "delete_trigger",
		Description: "Delete a trigger.",
		Parameters: obj([]string{"trigger_id"}, map[string]interface{}{
			"trigger_id": str("Trigger ID"),
		}),
	},
	{
		Name:        "list_commands",
		Description: "List chatbot commands (messages starting with /keyword).",
		Parameters:  obj(nil, map[string]interface{}{}),
	},
	{
		Name:        "create_command",
		Description: "Create a chatbot command: when someone sends /keyword in a group, the bot replies with the response.",
		Parameters: obj([]string{"keyword", "response"}, map[string]interface{}{
			"keyword":  str("Command keyword without the slash"),
			"response": str("Reply text"),
		}),
	},
	{
		Name:        "delete_command",
		Description: "Delete a chatbot command.",
		Parameters: obj([]string{"command_id"}, map[string]interface{}{
			"command_id": str("Command ID"),
		}),
	},
	{
		Name:        "list_scheduled_messages",
		Description: "List scheduled messages, optionally by status (pending, sent, failed, cancelled).",
		Parameters: obj(nil, map[string]interface{}{
			"status": str("Status filter"),
		}),
	},
	{
		Name:        "schedule_message",
		Description: "Schedule a text message for a group or for every group of a category.",
		Parameters: obj([]string{"text", "send_at"}, map[string]interface{}{
			"group_id":    str("Target group ID"),
			"category_id": str("Target category ID"),
			"text":        str("Message text"),
			"send_at":     str("When to send, RFC 3339 (e.g. 2025-01-31T09:00:00-03:00)"),
		}),
	},
	{
		Name:        "cancel_scheduled_message",
		Description: "Cancel a pending scheduled message.",
		Parameters: obj([]string{"message_id"}, map[string]interface{}{
			"message_id": str("Scheduled message ID"),
		}),
	},
}

var byName = func() map[string]Tool {
	m := make(map[string]Tool, len(catalog))
	for _, t := range catalog {
		m[t.Name] = t
	}
	return m
}()

// All returns the catalog in declaration order.
func All() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the named tool.
func Lookup(name string) (Tool, bool) {
	t, ok := byName[name]
	return t, ok
}

// Definitions returns the catalog in function-calling form.
func Definitions() []core.ToolDefinition {
	defs := make([]core.ToolDefinition, 0, len(catalog))
	for _, t := range catalog {
		defs = append(defs, t.Definition())
	}
	return defs
}
