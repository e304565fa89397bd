package transport

import (
	"encoding/json"

	"github.com/blotterfeed/blotterfeed/internal/delta"
	"github.com/blotterfeed/blotterfeed/internal/models"
)

// Message types on the websocket channel.
const (
	MsgSubscribe           = "subscribe"
	MsgSubscribeResponse   = "subscribeResponse"
	MsgUnsubscribe         = "unsubscribe"
	MsgUnsubscribeResponse = "unsubscribeResponse"
	MsgConnected           = "connected"
	MsgInitialData         = "initialData"
	MsgInstrumentUpdate    = "instrumentUpdate"
	MsgError               = "error"
)

// inboundMessage is the envelope for client requests. Unused fields stay
// empty depending on type.
type inboundMessage struct {
	Type            string          `json:"type"`
	InstrumentIDs   []string        `json:"instrumentIds,omitempty"`
	Filter          json.RawMessage `json:"filter,omitempty"`
	UpdateFrequency float64         `json:"updateFrequency,omitempty"`
	SubscriptionID  string          `json:"subscriptionId,omitempty"`
}

// connectedMessage announces the session id after the upgrade.
type connectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// ackMessage answers subscribe and unsubscribe requests.
type ackMessage struct {
	Type           string `json:"type"`
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Message        string `json:"message"`
}

// initialDataMessage carries the current snapshot of every requested,
// existing instrument that passes the subscription predicate.
type initialDataMessage struct {
	Type           string           `json:"type"`
	SubscriptionID string           `json:"subscriptionId"`
	Instruments    []map[string]any `json:"instruments"`
}

// updateMessage carries one field-level delta.
type updateMessage struct {
	Type string       `json:"type"`
	Data *delta.Delta `json:"data"`
}

// WireSnapshot flattens an instrument to its wire form: the id plus the full
// field map, timestamps as epoch-ms integers and enums as string tags.
func WireSnapshot(in *models.Instrument) map[string]any {
	m := models.WireFields(in.FieldMap())
	m["id"] = in.ID
	return m
}
