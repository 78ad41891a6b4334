package transport

import (
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"p9candles/internal/errs"
	"p9candles/pkg/batcher"
)

// Message is one decoded (topic, payload) pair delivered to a subscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// SubClient dials a PubServer's WebSocket endpoint and yields decoded
// messages, transparently un-batching PubServer.Publish's batched writes.
type SubClient struct {
	conn *websocket.Conn
	log  *zap.Logger
}

// DialSub connects to url (e.g. "ws://127.0.0.1:5556/pub").
func DialSub(url string, log *zap.Logger) (*SubClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial pub %s: %v", errs.ErrTransport, url, err)
	}
	return &SubClient{conn: conn, log: log.Named("sub")}, nil
}

// Recv blocks for the next WebSocket message and returns the messages it
// contains (one, unless the publisher batched several together).
func (c *SubClient) Recv() ([]Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read from pub: %v", errs.ErrTransport, err)
	}
	frames, ok := batcher.DecodeBatch(data)
	if !ok {
		return nil, fmt.Errorf("%w: malformed batch frame", errs.ErrProtocol)
	}
	out := make([]Message, 0, len(frames))
	for _, f := range frames {
		topic, payload, err := decodeFrame(f)
		if err != nil {
			return nil, err
		}
		out = append(out, Message{Topic: topic, Payload: payload})
	}
	return out, nil
}

func (c *SubClient) Close() error {
	return c.conn.Close()
}
