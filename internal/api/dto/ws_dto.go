package dto

// ClientCommand is one inbound websocket frame.
type ClientCommand struct {
	Action string `json:"action"`
	CaseID string `json:"case_id"`
	Body   string `json:"body,omitempty"`
}

// Websocket actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionSend  = "send"
)

// WSError is pushed when a command is refused; the connection stays open.
type WSError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	CaseID  string `json:"case_id,omitempty"`
}
