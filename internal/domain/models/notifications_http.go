package models

// Requests and responses for the ingest and activity HTTP endpoints.

// Notification is one device push: a base64 telemetry block and the resource
// path it came from.
type Notification struct {
	Payload string `json:"payload" validate:"required"`
	Path    string `json:"path" validate:"required"`
}

type NotificationsRequest struct {
	Notifications []Notification `json:"notifications" validate:"required,min=1,dive"`
}

// NotificationResult is the per-notification outcome returned in the ack body.
type NotificationResult struct {
	Path     string `json:"path"`
	Status   string `json:"status"` // classified, duplicate, throttled, failed
	Activity string `json:"activity,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AckResponse is always sent with HTTP 200 so devices keep transmitting.
type AckResponse struct {
	Acknowledged bool                 `json:"acknowledged"`
	Message      string               `json:"message"`
	Results      []NotificationResult `json:"results,omitempty"`
	Errors       interface{}          `json:"errors,omitempty"`
}

// Notification outcomes.
const (
	StatusClassified = "classified"
	StatusDuplicate  = "duplicate"
	StatusThrottled  = "throttled"
	StatusFailed     = "failed"
)

type ActivityHistoryRequest struct {
	ResourceID string `param:"resourceId" validate:"required"`
	Limit      int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
	From       string `query:"from"`
	To         string `query:"to"`
}

type LatestActivityRequest struct {
	ResourceID string `param:"resourceId" validate:"required"`
}
