package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"p9candles/pkg/batcher"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PubServer manages a set of subscriber connections and broadcasts
// CandleBatch/other envelope frames to all of them over a
// register/unregister/broadcast channel trio.
type PubServer struct {
	logger       *zap.Logger
	clients      map[*websocket.Conn]bool
	mu           sync.Mutex
	broadcastCh  chan []byte
	registerCh   chan *websocket.Conn
	unregisterCh chan *websocket.Conn

	batcher         *batcher.FrameBatcher
	batchingEnabled bool
}

// NewPubServer creates a PubServer. When enableBatching is true, frames
// published within a 50ms window (up to 32 of them) are coalesced into one
// WebSocket write via batcher.FrameBatcher.
func NewPubServer(logger *zap.Logger, enableBatching bool) *PubServer {
	p := &PubServer{
		logger:          logger.Named("pub"),
		clients:         make(map[*websocket.Conn]bool),
		broadcastCh:     make(chan []byte, 1024),
		registerCh:      make(chan *websocket.Conn, 64),
		unregisterCh:    make(chan *websocket.Conn, 64),
		batchingEnabled: enableBatching,
	}

	if enableBatching {
		p.batcher = batcher.NewFrameBatcher(logger, 32, 50*time.Millisecond, 65536)
		out := p.batcher.Start()
		go func() {
			for batched := range out {
				select {
				case p.broadcastCh <- batched:
				default:
					logger.Warn("broadcast channel full, dropping batched frame")
				}
			}
		}()
	}

	return p
}

// Run drives the register/unregister/broadcast loop. It has no context
// argument; the caller stops feeding it and closes the listener instead.
func (p *PubServer) Run() {
	p.logger.Info("pub server started")
	for {
		select {
		case conn := <-p.registerCh:
			p.mu.Lock()
			p.clients[conn] = true
			p.mu.Unlock()
			p.logger.Info("subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

		case conn := <-p.unregisterCh:
			p.mu.Lock()
			if _, ok := p.clients[conn]; ok {
				delete(p.clients, conn)
				conn.Close()
			}
			p.mu.Unlock()

		case msg := <-p.broadcastCh:
			p.mu.Lock()
			for conn := range p.clients {
				if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
					p.logger.Warn("write to subscriber failed, dropping", zap.Error(err))
					delete(p.clients, conn)
					conn.Close()
				}
			}
			p.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers it as a
// subscriber.
func (p *PubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	p.registerCh <- conn
}

// Publish broadcasts payload on topic to every connected subscriber.
func (p *PubServer) Publish(topic string, payload []byte) {
	frame := encodeFrame(topic, payload)
	if p.batchingEnabled {
		p.batcher.Add(frame)
		return
	}
	single := batchOfOne(frame)
	select {
	case p.broadcastCh <- single:
	default:
		p.logger.Warn("broadcast channel full, dropping message")
	}
}

// SubscriberCount reports the number of currently registered subscribers.
func (p *PubServer) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
