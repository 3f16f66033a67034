// models/chat.go
package models

import "time"

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Immutable once appended to a
// session. Metadata is set only on assistant messages.
type Message struct {
	Role      string           `bson:"role" json:"role"`
	Content   string           `bson:"content" json:"content"`
	Timestamp time.Time        `bson:"timestamp" json:"timestamp"`
	Metadata  *MessageMetadata `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// MessageMetadata records how an assistant message was produced.
type MessageMetadata struct {
	Provider    string `bson:"provider" json:"provider"`
	Model       string `bson:"model" json:"model"`
	TokensUsed  int    `bson:"tokens_used" json:"tokens_used"`
	SourceCount int    `bson:"source_count" json:"source_count"`
}

// Session is a bounded-history conversation context. Messages is capped at
// the history retention window; the oldest messages are dropped first and
// never reordered.
type Session struct {
	ID             string    `bson:"_id" json:"id"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
	Messages       []Message `bson:"messages" json:"messages"`
}

// ChatRequest is the inbound chat payload. The message length ceiling is
// enforced by the pipeline from configuration, not here.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" binding:"required,min=1"`
	Model     string `json:"model,omitempty"`
}

// ChatResponse is the outbound chat payload. A chat request almost always
// succeeds; on generation failure Answer carries a fixed fallback text with
// Provider "system", ModelUsed "fallback" and TokensUsed 0.
type ChatResponse struct {
	Answer           string      `json:"answer"`
	SessionID        string      `json:"session_id"`
	Sources          []SearchHit `json:"sources"`
	Provider         string      `json:"provider"`
	TokensUsed       int         `json:"tokens_used"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	ModelUsed        string      `json:"model_used"`
	Timestamp        time.Time   `json:"timestamp"`
}
