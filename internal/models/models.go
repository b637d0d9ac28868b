package models

import (
	"encoding/json"
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Conversation is created once and never mutated afterwards.
type Conversation struct {
	ID          string    `db:"id" json:"id"`
	OwnerUserID string    `db:"owner_user_id" json:"ownerUserId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// ConversationOwner links a conversation to the account that owns it.
type ConversationOwner struct {
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	UserID         string    `db:"user_id" json:"userId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Role is who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable entry in a conversation's log.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	Seq            int64     `db:"seq" json:"-"`
	Role           Role      `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// UserDataFile is the catalog record for one uploaded reference file.
type UserDataFile struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"userId"`
	Filename   string    `db:"filename" json:"filename"`
	PathToFile string    `db:"path_to_file" json:"-"` // never leaves the server
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ContextItem is derived from a UserDataFile on every turn.
type ContextItem struct {
	Description string              `json:"description"`
	Data        []map[string]string `json:"data"`
}

// ContextFaultKind classifies why a file was left out of the context.
type ContextFaultKind string

const (
	ContextFaultMissing ContextFaultKind = "missing"
	ContextFaultParse   ContextFaultKind = "parse"
)

// ContextFault reports a file that could not be turned into a ContextItem.
type ContextFault struct {
	Filename string           `json:"filename"`
	Kind     ContextFaultKind `json:"kind"`
	Message  string           `json:"message"`
}

// EncodedHistoryItem is a message prepared for transport to the inference engine.
type EncodedHistoryItem struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// EnginePayload is the request body sent to the inference engine.
type EnginePayload struct {
	ConversationID     string               `json:"conversationId"`
	UserMessageHistory []EncodedHistoryItem `json:"userMessageHistory"`
	UserContext        []ContextItem        `json:"userContext"`
	InputType          string               `json:"input_type"`
	OutputType         string               `json:"output_type"`
}

// Acknowledgment is the engine's synchronous reply, kept verbatim.
type Acknowledgment = json.RawMessage
