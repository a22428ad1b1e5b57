// Package schema defines the database schema the provisioner converges
// towards. Every statement is safe to repeat: tables and indexes guard with
// IF NOT EXISTS, so a partially provisioned database converges instead of
// failing.
package schema

// TableDefinitions contains all the SQL statements to create the database
// tables, ordered so referenced tables exist before their dependents.
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS project_versions (
		id UUID PRIMARY KEY,
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL DEFAULT 1,
		snapshot JSONB,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (project_id, version_number)
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id UUID PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		description TEXT,
		category VARCHAR(50) NOT NULL DEFAULT 'general',
		content JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id UUID PRIMARY KEY,
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id UUID PRIMARY KEY,
		chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS generated_files (
		id UUID PRIMARY KEY,
		project_version_id UUID NOT NULL REFERENCES project_versions(id) ON DELETE CASCADE,
		chat_message_id UUID REFERENCES chat_messages(id) ON DELETE SET NULL,
		file_path VARCHAR(512) NOT NULL,
		content TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// IndexDefinitions contains the secondary indexes, applied after the tables.
var IndexDefinitions = []string{
	`CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_project_versions_project_id ON project_versions(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_project_id ON chats(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_id ON chat_messages(chat_id)`,
	`CREATE INDEX IF NOT EXISTS idx_generated_files_project_version_id ON generated_files(project_version_id)`,
}

// TableNames lists the tables in creation order, used for introspection and
// teardown in tests.
var TableNames = []string{
	"users",
	"projects",
	"project_versions",
	"templates",
	"chats",
	"chat_messages",
	"generated_files",
}
