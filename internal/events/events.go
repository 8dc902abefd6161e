package events

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamMessages = "ORDERDESK_MESSAGES"
	StreamEvents   = "ORDERDESK_EVENTS"
)

// Subject constants.
const (
	SubjectInboundMessage  = "orderdesk.messages.inbound"
	SubjectOutboundMessage = "orderdesk.messages.outbound"
	SubjectAuditEvent      = "orderdesk.events.audit"
)

// Media types carried by an inbound message.
const (
	MediaNone  = ""
	MediaAudio = "audio"
	MediaImage = "image"
)

// InboundMessage is published when a WhatsApp message arrives at the webhook.
type InboundMessage struct {
	ID         string    `json:"id"`
	WamID      string    `json:"wam_id"`
	From       string    `json:"from"`
	Text       string    `json:"text"`
	ReplyToID  string    `json:"reply_to_id,omitempty"`
	Forwarded  bool      `json:"forwarded,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	MediaID    string    `json:"media_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is published to send a reply back via the WhatsApp Cloud API.
type OutboundMessage struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// AuditEvent records one handled message for the audit trail.
type AuditEvent struct {
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"` // e.g. "message_handled", "message_dropped"
	Stage     string    `json:"stage,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
