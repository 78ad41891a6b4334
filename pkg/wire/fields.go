package wire

// WireSchemaVersion is the compile-time schema version both peers must
// agree on exactly. A mismatch is fatal for that single message: the
// receiver drops it and reports ErrUnsupportedSchema.
const WireSchemaVersion uint16 = 1

// MessageType is the envelope's type_hint discriminant.
type MessageType uint16

const (
	MessageCandleBatch             MessageType = 1
	MessageBackfillCandlesRequest  MessageType = 2
	MessageBackfillCandlesResponse MessageType = 3
	MessageGetCursorRequest        MessageType = 4
	MessageGetCursorResponse       MessageType = 5
	MessageErrorResponse           MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MessageCandleBatch:
		return "CANDLE_BATCH"
	case MessageBackfillCandlesRequest:
		return "BACKFILL_CANDLES_REQUEST"
	case MessageBackfillCandlesResponse:
		return "BACKFILL_CANDLES_RESPONSE"
	case MessageGetCursorRequest:
		return "GET_CURSOR_REQUEST"
	case MessageGetCursorResponse:
		return "GET_CURSOR_RESPONSE"
	case MessageErrorResponse:
		return "ERROR_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Field identifiers, one const block per message shape. These numbers must
// never be reused for a different meaning within the same message once a
// peer has shipped against them.
const (
	fieldEnvelopeSchemaVersion uint8 = 1
	fieldEnvelopeType          uint8 = 2
	fieldEnvelopeCorrelationID uint8 = 3
	fieldEnvelopePayload       uint8 = 4
)

const (
	fieldStreamKeySourceID uint8 = 1
	fieldStreamKeySymbol   uint8 = 2
	fieldStreamKeyInterval uint8 = 3
)

const (
	fieldCandleBatchKey           uint8 = 1
	fieldCandleBatchStartSequence uint8 = 2
	fieldCandleBatchCandles       uint8 = 3
)

const (
	fieldBackfillReqKey                uint8 = 1
	fieldBackfillReqHasFromSequence    uint8 = 2
	fieldBackfillReqFromSeqExclusive   uint8 = 3
	fieldBackfillReqHasEndTsMs         uint8 = 4
	fieldBackfillReqEndTsMs            uint8 = 5
	fieldBackfillReqLimit              uint8 = 6
)

const (
	fieldBackfillRespKey           uint8 = 1
	fieldBackfillRespStartSequence uint8 = 2
	fieldBackfillRespCandles       uint8 = 3
	fieldBackfillRespHasMore       uint8 = 4
	fieldBackfillRespNextSequence  uint8 = 5
)

const (
	fieldGetCursorReqKey uint8 = 1
)

const (
	fieldGetCursorRespKey           uint8 = 1
	fieldGetCursorRespLatestSeq     uint8 = 2
	fieldGetCursorRespLatestTsMs    uint8 = 3
)

const (
	fieldErrorCode    uint8 = 1
	fieldErrorMessage uint8 = 2
)
