package wire

import (
	"fmt"

	"p9candles/internal/errs"
)

// Envelope is the outer frame every message is wrapped in. SchemaVersion is
// checked before Type is even inspected; a mismatch means the body is not
// trusted to decode and the message is dropped whole.
type Envelope struct {
	SchemaVersion uint16
	Type          MessageType
	// CorrelationID is an optional request/response tag. Zero means "no
	// correlation" and is not written to the wire. The coordinator and the
	// simulator in this module always send zero; the simulator does not
	// echo a request's value into its response.
	CorrelationID uint64
	Body          []byte
}

// EncodeEnvelope serializes e to the wire. The caller has already encoded
// the body with the matching EncodeXxx function for e.Type.
func EncodeEnvelope(e Envelope) []byte {
	w := newFieldWriter()
	w.putUint16(fieldEnvelopeSchemaVersion, e.SchemaVersion)
	w.putUint16(fieldEnvelopeType, uint16(e.Type))
	if e.CorrelationID != 0 {
		w.putUint64(fieldEnvelopeCorrelationID, e.CorrelationID)
	}
	w.putBytes(fieldEnvelopePayload, e.Body)
	return w.bytes()
}

// DecodeEnvelope parses the outer frame only; it does not validate
// SchemaVersion, so callers compare it against WireSchemaVersion and return
// ErrUnsupportedSchema themselves before decoding the body.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return Envelope{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldEnvelopeSchemaVersion:
			v, err := parseUint16(payload)
			if err != nil {
				return Envelope{}, err
			}
			e.SchemaVersion = v
		case fieldEnvelopeType:
			v, err := parseUint16(payload)
			if err != nil {
				return Envelope{}, err
			}
			e.Type = MessageType(v)
		case fieldEnvelopeCorrelationID:
			v, err := parseUint64(payload)
			if err != nil {
				return Envelope{}, err
			}
			e.CorrelationID = v
		case fieldEnvelopePayload:
			e.Body = payload
		default:
			// Unknown field: forward-compatible readers skip it.
		}
	}
	if e.Type == 0 {
		return Envelope{}, fmt.Errorf("%w: envelope missing type field", errs.ErrProtocol)
	}
	return e, nil
}
