package store

// schema is portable between SQLite and Postgres. Ids are text UUIDs minted in
// Go; timestamps are written from Go in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS organization_members (
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member', -- owner, admin, member
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (organization_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		secret_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_used_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		title TEXT NOT NULL,
		messages TEXT NOT NULL,
		tool_calls TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_owner ON chat_sessions(user_id, organization_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS whatsapp_instances (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		provider_token TEXT NOT NULL DEFAULT '',
		webhook_secret TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created', -- created, connecting, connected, disconnected
		phone TEXT NOT NULL DEFAULT '',
		qr_code TEXT NOT NULL DEFAULT '',
		pair_code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS whatsapp_groups (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		instance_id TEXT NOT NULL REFERENCES whatsapp_instances(id) ON DELETE CASCADE,
		jid TEXT NOT NULL,
		name TEXT NOT NULL,
		participants INTEGER NOT NULL DEFAULT 0,
		category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
		synced_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (instance_id, jid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_whatsapp_groups_org ON whatsapp_groups(organization_id, category_id)`,
	`CREATE TABLE IF NOT EXISTS automation_triggers (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		expression TEXT NOT NULL, -- CEL, evaluated against the incoming message
		response TEXT NOT NULL,
		group_id TEXT REFERENCES whatsapp_groups(id) ON DELETE CASCADE,
		category_id TEXT REFERENCES categories(id) ON DELETE CASCADE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		fire_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chatbot_commands (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		keyword TEXT NOT NULL,
		response TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (organization_id, keyword)
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_messages (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		group_id TEXT REFERENCES whatsapp_groups(id) ON DELETE CASCADE,
		category_id TEXT REFERENCES categories(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		send_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending', -- pending, sending, sent, failed, cancelled
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		sent_at TIMESTAMP,
		claimed_at TIMESTAMP,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_due ON scheduled_messages(status, send_at)`,
}
