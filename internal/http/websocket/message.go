package websocket

type socketMessageType int

const (
	Update socketMessageType = iota
	Welcome
)

// SocketMessage is one push-frame sent to connected listeners. The hub is a
// publish-only sink: clients receive state (queue counters, activity log
// lines, library stats) and never command the server over this channel.
type SocketMessage struct {
	Title string                 `json:"title"`
	Body  map[string]interface{} `json:"arguments"`
	Type  socketMessageType      `json:"type"`
}
