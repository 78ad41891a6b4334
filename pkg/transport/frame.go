// Package transport implements PUB/SUB and REQ/REP messaging patterns over
// github.com/gorilla/websocket: a PUB endpoint broadcasts topic-tagged
// frames to all subscribers, and a REP endpoint answers one request per
// connection.
package transport

import (
	"encoding/binary"
	"fmt"

	"p9candles/internal/errs"
)

// encodeFrame combines a topic frame and payload frame into a
// single WebSocket message: a 2-byte big-endian topic length, the topic
// bytes, then the payload. Sending them as two separate WebSocket
// messages risks interleaving when multiple goroutines publish
// concurrently; one gorilla/websocket connection allows only one writer
// at a time, so this keeps topic and payload atomically paired.
func encodeFrame(topic string, payload []byte) []byte {
	out := make([]byte, 2+len(topic)+len(payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(topic)))
	copy(out[2:2+len(topic)], topic)
	copy(out[2+len(topic):], payload)
	return out
}

// batchOfOne wraps a single frame in the same [4-byte length][frame]
// envelope batcher.FrameBatcher produces, so a SubClient can always run
// batcher.DecodeBatch regardless of whether the publisher batches.
func batchOfOne(frame []byte) []byte {
	out := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(frame)))
	copy(out[4:], frame)
	return out
}

func decodeFrame(data []byte) (topic string, payload []byte, err error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("%w: frame too short for topic length", errs.ErrProtocol)
	}
	topicLen := int(binary.BigEndian.Uint16(data[0:2]))
	rest := data[2:]
	if topicLen > len(rest) {
		return "", nil, fmt.Errorf("%w: truncated topic", errs.ErrProtocol)
	}
	return string(rest[:topicLen]), rest[topicLen:], nil
}
