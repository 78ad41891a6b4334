package transport

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"p9candles/internal/errs"
)

// ReqClient performs one request/response round trip over a fresh
// WebSocket connection — no connection reuse across requests.
type ReqClient struct {
	url string
	log *zap.Logger
}

func NewReqClient(url string, log *zap.Logger) *ReqClient {
	return &ReqClient{url: url, log: log.Named("req")}
}

// Call dials, sends body, reads exactly one response, and closes the
// connection.
func (c *ReqClient) Call(body []byte) ([]byte, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rep %s: %v", errs.ErrTransport, c.url, err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, body); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", errs.ErrTransport, err)
	}
	_, resp, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", errs.ErrTransport, err)
	}
	return resp, nil
}

// RepHandler answers one request body with a response body.
type RepHandler func(request []byte) []byte

// RepServer upgrades each incoming HTTP connection to a WebSocket,
// reads exactly one request, answers with handler's response, and closes
// the connection — one goroutine per in-flight request, matching the
// coordinator's "fresh REQ socket per backfill" expectation on the other
// side.
type RepServer struct {
	handler RepHandler
	log     *zap.Logger
}

func NewRepServer(handler RepHandler, log *zap.Logger) *RepServer {
	return &RepServer{handler: handler, log: log.Named("rep")}
}

func (s *RepServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	_, req, err := conn.ReadMessage()
	if err != nil {
		s.log.Warn("read request failed", zap.Error(err))
		return
	}

	resp := s.handler(req)
	if err := conn.WriteMessage(websocket.BinaryMessage, resp); err != nil {
		s.log.Warn("write response failed", zap.Error(err))
	}
}
