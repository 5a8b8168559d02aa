package link

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Action is the gateway verb carried by a Request.
type Action string

const (
	// ActionAssociate opens an application association with the device.
	ActionAssociate Action = "associate"

	// ActionRelease closes the association with a release handshake.
	ActionRelease Action = "release"

	// ActionAbort drops the association without a handshake.
	ActionAbort Action = "abort"

	// ActionRead reads object values.
	ActionRead Action = "read"

	// ActionWrite writes object values.
	ActionWrite Action = "write"
)

// StatusOK is the only successful Response status.
const StatusOK = "ok"

// Request is sent from the fleet service to a protocol gateway.
// Topic: graylogic/request/{protocol}/{request_id}
type Request struct {
	// RequestID correlates the Response. Generated when empty.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was sent (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the inventory identifier of the target device.
	DeviceID string `json:"device_id"`

	// Address is the protocol-specific device address.
	Address string `json:"address"`

	// Action is the gateway verb.
	Action Action `json:"action"`

	// Public selects the unauthenticated public association (associate only).
	Public bool `json:"public,omitempty"`

	// Body carries action parameters, e.g. {"objects": [...]} for read.
	Body map[string]any `json:"body,omitempty"`
}

// Response is sent from a protocol gateway back to the fleet service.
// Topic: graylogic/response/{protocol}/{request_id}
type Response struct {
	RequestID string `json:"request_id"`

	// Status is "ok" or a device error code such as "no_access".
	Status string `json:"status"`

	// Message is a human-readable detail for failed requests.
	Message string `json:"message,omitempty"`

	// Values holds object values returned by read.
	Values map[string]any `json:"values,omitempty"`
}

// OK reports whether the gateway accepted the request.
func (r Response) OK() bool {
	return strings.EqualFold(r.Status, StatusOK)
}

// Err converts a failed Response into a *transaction.ProtocolError whose code
// is the upper-cased status. Returns nil for a successful Response.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	code := transaction.ErrorCode(strings.ToUpper(strings.TrimSpace(r.Status)))
	if code == "" {
		code = transaction.CodeUnknown
	}
	return transaction.NewProtocolError(code, r.Message)
}
