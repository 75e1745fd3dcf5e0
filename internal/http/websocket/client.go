package websocket

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type socketClient struct {
	id     uuid.UUID
	socket *websocket.Conn
}

func (client *socketClient) SendMessage(message *SocketMessage) error {
	return client.socket.WriteJSON(message)
}

// drain reads (and discards) inbound frames until the connection errors.
// The hub pushes state only; reading is solely how we learn the peer has
// gone away. It is the callers responsibility to deregister the client once
// this returns.
func (client *socketClient) drain() error {
	for {
		if _, _, err := client.socket.ReadMessage(); err != nil {
			return err
		}
	}
}

func (client *socketClient) Close() {
	client.socket.Close()
}
