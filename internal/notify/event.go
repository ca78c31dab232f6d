package notify

import (
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/db/models"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Event is the envelope pushed to live admin connections.
type Event struct {
	Type               models.EventType       `json:"type"`
	SignatureRequestID string                 `json:"signatureRequestId"`
	SignerEmail        string                 `json:"signerEmail"`
	SignerName         string                 `json:"signerName"`
	Status             models.RequestStatus   `json:"status"`
	Message            string                 `json:"message"`
	Timestamp          time.Time              `json:"timestamp"`
	Severity           Severity               `json:"severity"`
	Data               map[string]interface{} `json:"data,omitempty"`
}

// Client-to-server message types.
const (
	MessageHeartbeat   = "heartbeat"
	MessageSubscribe   = "subscribe_to_events"
	MessageUnsubscribe = "unsubscribe_from_events"
)

// ClientMessage is what a connected admin sends upstream.
type ClientMessage struct {
	Type      string           `json:"type"`
	EventType models.EventType `json:"eventType,omitempty"`
}
