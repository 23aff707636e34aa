// Package ctlplane implements spec.md §4.8: the control-plane server
// listening on lattice-wide NATS subjects for scale/start/stop/update/
// auction/inventory/link/config/label requests, dispatching each verb
// concurrently while serializing requests that target the same
// command kind.
package ctlplane

import "encoding/json"

// Response is the reply envelope for every control-plane command,
// matching spec.md §4.8's CtlResponse{success, message, data}.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Ok builds a successful Response, marshaling data (nil is fine) into
// the Data field.
func Ok(data interface{}) Response {
	resp := Response{Success: true}
	if data == nil {
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{Success: false, Message: "failed to marshal response data: " + err.Error()}
	}
	resp.Data = raw
	return resp
}

// Fail builds a failure Response carrying message. Per spec.md §4.8,
// failures are reported on the reply, never thrown as a transport
// error.
func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

// Marshal serializes the Response for a NATS reply payload.
func (r Response) Marshal() []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		// A Response itself failing to marshal means json.RawMessage
		// Data was invalid; fall back to a minimal failure envelope.
		return []byte(`{"success":false,"message":"failed to marshal control response"}`)
	}
	return raw
}
