package socket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message types exchanged over the chat socket.
const (
	// Outbound
	TypePing        = "ping"
	TypeChatMessage = "chat_message"

	// Inbound
	TypeConnectionAck  = "connection_ack"
	TypePong           = "pong"
	TypeChatProcessing = "chat_processing"
	TypeChatStreaming  = "chat_streaming"
	TypeChatResponse   = "chat_response"
	TypeChatError      = "chat_error"
)

// Envelope is the JSON frame wrapping every message in both directions.
type Envelope struct {
	MessageID   string          `json:"message_id,omitempty"`
	MessageType string          `json:"message_type"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
}

// NewEnvelope builds an outbound envelope with a fresh message id and
// timestamp, marshalling data into the frame. Marshal failures are
// impossible for the payload types this package defines, so data is
// dropped silently if one ever occurs.
func NewEnvelope(messageType, sessionID, taskID string, data any) Envelope {
	env := Envelope{
		MessageID:   uuid.New().String(),
		MessageType: messageType,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:   sessionID,
		TaskID:      taskID,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			env.Data = raw
		}
	}
	return env
}

// OutgoingMessage is one conversation turn inside a chat_message frame.
type OutgoingMessage struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatMessageData is the payload of an outbound chat_message frame.
type ChatMessageData struct {
	Messages       []OutgoingMessage `json:"messages"`
	Tools          []map[string]any  `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// PingData is the payload of an outbound ping frame.
type PingData struct {
	Timestamp string `json:"timestamp"`
}

// ProcessingData is the payload of a chat_processing frame.
type ProcessingData struct {
	Status string `json:"status,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// StreamChunk is the payload of a chat_streaming frame.
type StreamChunk struct {
	Content    string `json:"content"`
	IsFinal    bool   `json:"is_final"`
	ChunkIndex int    `json:"chunk_index"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// ResponseMessage is the assistant message inside a chat_response frame.
type ResponseMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// ResponseData is the payload of a terminal chat_response frame.
type ResponseData struct {
	Message         ResponseMessage `json:"message"`
	Usage           map[string]any  `json:"usage,omitempty"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	ExecutionTimeMS float64         `json:"execution_time_ms,omitempty"`
	Sources         []any           `json:"sources,omitempty"`
	Status          string          `json:"status,omitempty"`
}

// ErrorDetail is the nested error object inside a chat_error frame.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorData is the payload of a chat_error frame.
type ErrorData struct {
	Error ErrorDetail `json:"error"`
}
