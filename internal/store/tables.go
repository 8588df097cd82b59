package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names. Queries are built with the ent SQL builder against
// these names, so they are the single source of truth for the layout.
const (
	tableLLMRequestEvents     = "llm_request_events"
	tableUsers                = "users"
	tableCourses              = "courses"
	tableConversationMessages = "conversation_messages"
	tableSequence             = "global_sequence"
)

// textSize makes ent emit an unbounded TEXT column.
const textSize = 2147483647

var (
	llmEventColumns = []*entschema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: textSize, Default: ""},
	}
	llmEventsTable = &entschema.Table{
		Name:       tableLLMRequestEvents,
		Columns:    llmEventColumns,
		PrimaryKey: []*entschema.Column{llmEventColumns[0]},
		Indexes: []*entschema.Index{
			{Name: "llmrequestevent_purpose", Columns: []*entschema.Column{llmEventColumns[5]}},
			{Name: "llmrequestevent_model", Columns: []*entschema.Column{llmEventColumns[4]}},
			{Name: "llmrequestevent_success", Columns: []*entschema.Column{llmEventColumns[9]}},
		},
	}

	userColumns = []*entschema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "external_id", Type: field.TypeString, Unique: true},
		{Name: "email", Type: field.TypeString, Default: ""},
		{Name: "display_name", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	usersTable = &entschema.Table{
		Name:       tableUsers,
		Columns:    userColumns,
		PrimaryKey: []*entschema.Column{userColumns[0]},
	}

	courseColumns = []*entschema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "owner_id", Type: field.TypeInt},
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: textSize, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	coursesTable = &entschema.Table{
		Name:       tableCourses,
		Columns:    courseColumns,
		PrimaryKey: []*entschema.Column{courseColumns[0]},
		Indexes: []*entschema.Index{
			{Name: "course_owner_id", Columns: []*entschema.Column{courseColumns[1]}},
		},
	}

	conversationColumns = []*entschema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "conversation_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeInt},
		{Name: "course_id", Type: field.TypeString, Default: ""},
		{Name: "role", Type: field.TypeString},
		{Name: "content", Type: field.TypeString, Size: textSize},
	}
	conversationTable = &entschema.Table{
		Name:       tableConversationMessages,
		Columns:    conversationColumns,
		PrimaryKey: []*entschema.Column{conversationColumns[0]},
		Indexes: []*entschema.Index{
			{Name: "conversationmessage_conversation_id", Columns: []*entschema.Column{conversationColumns[3]}},
		},
	}

	sequenceColumns = []*entschema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_val", Type: field.TypeInt64, Default: 1},
	}
	sequenceTable = &entschema.Table{
		Name:       tableSequence,
		Columns:    sequenceColumns,
		PrimaryKey: []*entschema.Column{sequenceColumns[0]},
	}

	tables = []*entschema.Table{
		sequenceTable,
		llmEventsTable,
		usersTable,
		coursesTable,
		conversationTable,
	}
)

// migrate creates or updates every table through ent's migration engine.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := entschema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
