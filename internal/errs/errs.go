// Package errs collects sentinel errors grouped into transport, protocol,
// data, storage, and state categories. Callers compare against these with
// errors.Is, and wrap them with fmt.Errorf("...: %w", err).
package errs

import "errors"

var (
	// Transport errors: connect/bind/send/recv failures. Recoverable at the
	// coordinator via reconnect+backoff; fatal at the simulator at bind time.
	ErrTransport = errors.New("transport error")

	// Protocol errors: invalid envelope, wrong schema version, unexpected
	// message type. The offending message is dropped; the coordinator
	// continues.
	ErrProtocol          = errors.New("protocol error")
	ErrUnsupportedSchema = errors.New("unsupported schema version")

	// Data errors: candle validation failures, relevant at load-from-file
	// boundaries and when the server's wire payload decodes to an invalid
	// candle.
	ErrInvertedRange        = errors.New("inverted candle range")
	ErrInvalidNumber        = errors.New("invalid numeric value")
	ErrUnsupportedTimestamp = errors.New("unsupported timestamp")

	// Storage errors: any backend failure, surfaced to the consumer. The
	// coordinator does not self-heal these.
	ErrNoBackend       = errors.New("no storage backend available")
	ErrMissingDiskPath = errors.New("disk path is required for disk-backed storage")

	// State errors: configuration bugs that must surface immediately.
	ErrInvalidMode = errors.New("invalid storage mode")
)
