// Package batcher coalesces pre-encoded wire frames into fewer WebSocket
// writes, operating on raw binary envelope frames.
package batcher

import (
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FrameBatcher accumulates already wire.EncodeEnvelope-d frames and flushes
// them as one concatenated, length-prefixed blob once MaxSize frames have
// queued or Timeout has elapsed since the first frame in the batch.
type FrameBatcher struct {
	logger   *zap.Logger
	frames   [][]byte
	mu       sync.Mutex
	timer    *time.Timer
	maxSize  int
	timeout  time.Duration
	maxBytes int
	outputCh chan []byte
}

func NewFrameBatcher(logger *zap.Logger, maxSize int, timeout time.Duration, maxBytes int) *FrameBatcher {
	return &FrameBatcher{
		logger:   logger.Named("batcher"),
		frames:   make([][]byte, 0, maxSize),
		maxSize:  maxSize,
		timeout:  timeout,
		maxBytes: maxBytes,
		outputCh: make(chan []byte, 100),
	}
}

// Start returns the channel flushed batches are delivered on.
func (b *FrameBatcher) Start() <-chan []byte {
	return b.outputCh
}

// Add queues one encoded frame.
func (b *FrameBatcher) Add(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = append(b.frames, frame)

	if len(b.frames) >= b.maxSize {
		b.flush()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.timeout, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.flush()
		})
	}
}

// flush must be called with mu held. It concatenates the queued frames as
// a sequence of [4-byte length][frame bytes] records.
func (b *FrameBatcher) flush() {
	if len(b.frames) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	size := 0
	for _, f := range b.frames {
		size += 4 + len(f)
	}
	if size > b.maxBytes {
		b.logger.Warn("batch exceeds max size, splitting",
			zap.Int("size", size), zap.Int("max", b.maxBytes), zap.Int("count", len(b.frames)))
		b.splitAndFlush(b.frames)
		b.frames = b.frames[:0]
		return
	}

	out := make([]byte, 0, size)
	for _, f := range b.frames {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	count := len(b.frames)
	b.frames = b.frames[:0]

	select {
	case b.outputCh <- out:
		b.logger.Debug("batch sent", zap.Int("count", count), zap.Int("size", len(out)))
	default:
		b.logger.Warn("output channel full, dropping batch")
	}
}

func (b *FrameBatcher) splitAndFlush(frames [][]byte) {
	chunkSize := b.maxSize / 2
	if chunkSize == 0 {
		chunkSize = 1
	}
	for i := 0; i < len(frames); i += chunkSize {
		end := i + chunkSize
		if end > len(frames) {
			end = len(frames)
		}
		chunk := frames[i:end]
		size := 0
		for _, f := range chunk {
			size += 4 + len(f)
		}
		out := make([]byte, 0, size)
		for _, f := range chunk {
			var lenBuf [4]byte
			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
			out = append(out, lenBuf[:]...)
			out = append(out, f...)
		}
		select {
		case b.outputCh <- out:
			b.logger.Debug("chunk sent", zap.Int("count", len(chunk)))
		default:
			b.logger.Warn("output channel full, dropping chunk")
		}
	}
}

// DecodeBatch splits a FrameBatcher-produced blob back into its individual
// frames, the inverse of flush's concatenation.
func DecodeBatch(data []byte) ([][]byte, bool) {
	var frames [][]byte
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, false
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(n) > uint64(len(data)) {
			return nil, false
		}
		frames = append(frames, data[:n])
		data = data[n:]
	}
	return frames, true
}

// Close flushes any remaining frames and closes the output channel.
func (b *FrameBatcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flush()
	close(b.outputCh)
}
