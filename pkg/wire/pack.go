package wire

import (
	"fmt"

	"p9candles/internal/errs"
)

// Pack wraps an already-encoded message body in an Envelope of the given
// type, stamping the current WireSchemaVersion.
func Pack(t MessageType, correlationID uint64, body []byte) Envelope {
	return Envelope{
		SchemaVersion: WireSchemaVersion,
		Type:          t,
		CorrelationID: correlationID,
		Body:          body,
	}
}

// Unpack checks the envelope's schema version and dispatches to the
// decoder matching its Type. The returned value is one of CandleBatch,
// BackfillCandlesRequest, BackfillCandlesResponse, GetCursorRequest,
// GetCursorResponse, or ErrorResponse.
func Unpack(e Envelope) (any, error) {
	if e.SchemaVersion != WireSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", errs.ErrUnsupportedSchema, e.SchemaVersion, WireSchemaVersion)
	}
	switch e.Type {
	case MessageCandleBatch:
		return DecodeCandleBatch(e.Body)
	case MessageBackfillCandlesRequest:
		return DecodeBackfillCandlesRequest(e.Body)
	case MessageBackfillCandlesResponse:
		return DecodeBackfillCandlesResponse(e.Body)
	case MessageGetCursorRequest:
		return DecodeGetCursorRequest(e.Body)
	case MessageGetCursorResponse:
		return DecodeGetCursorResponse(e.Body)
	case MessageErrorResponse:
		return DecodeErrorResponse(e.Body)
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", errs.ErrProtocol, e.Type)
	}
}
