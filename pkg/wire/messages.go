package wire

import (
	"fmt"

	"p9candles/pkg/candle"
)

// CandleBatch is an unsolicited run of contiguous candles for one stream,
// published on the PUB/SUB side. Backfilled candles arrive as a
// BackfillCandlesResponse instead.
type CandleBatch struct {
	Key           candle.Key
	StartSequence uint64
	Candles       []candle.Candle
}

func EncodeCandleBatch(b CandleBatch) []byte {
	w := newFieldWriter()
	w.putBytes(fieldCandleBatchKey, encodeStreamKey(b.Key))
	w.putUint64(fieldCandleBatchStartSequence, b.StartSequence)
	w.putBytes(fieldCandleBatchCandles, encodeCandles(b.Candles))
	return w.bytes()
}

func DecodeCandleBatch(data []byte) (CandleBatch, error) {
	var b CandleBatch
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return CandleBatch{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldCandleBatchKey:
			k, err := decodeStreamKey(payload)
			if err != nil {
				return CandleBatch{}, err
			}
			b.Key = k
		case fieldCandleBatchStartSequence:
			v, err := parseUint64(payload)
			if err != nil {
				return CandleBatch{}, err
			}
			b.StartSequence = v
		case fieldCandleBatchCandles:
			cs, err := decodeCandles(payload)
			if err != nil {
				return CandleBatch{}, err
			}
			b.Candles = cs
		}
	}
	return b, nil
}

// BackfillCandlesRequest asks the simulator's REP endpoint for every candle
// after FromSequenceExclusive (when HasFromSequence), optionally bounded
// above by EndTsMs (when HasEndTsMs), capped at Limit candles.
type BackfillCandlesRequest struct {
	Key                 candle.Key
	HasFromSequence     bool
	FromSequenceExclusive uint64
	HasEndTsMs          bool
	EndTsMs             int64
	Limit               uint32
}

func EncodeBackfillCandlesRequest(req BackfillCandlesRequest) []byte {
	w := newFieldWriter()
	w.putBytes(fieldBackfillReqKey, encodeStreamKey(req.Key))
	w.putBool(fieldBackfillReqHasFromSequence, req.HasFromSequence)
	if req.HasFromSequence {
		w.putUint64(fieldBackfillReqFromSeqExclusive, req.FromSequenceExclusive)
	}
	w.putBool(fieldBackfillReqHasEndTsMs, req.HasEndTsMs)
	if req.HasEndTsMs {
		w.putInt64(fieldBackfillReqEndTsMs, req.EndTsMs)
	}
	w.putUint32(fieldBackfillReqLimit, req.Limit)
	return w.bytes()
}

func DecodeBackfillCandlesRequest(data []byte) (BackfillCandlesRequest, error) {
	var req BackfillCandlesRequest
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return BackfillCandlesRequest{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldBackfillReqKey:
			k, err := decodeStreamKey(payload)
			if err != nil {
				return BackfillCandlesRequest{}, err
			}
			req.Key = k
		case fieldBackfillReqHasFromSequence:
			v, err := parseBool(payload)
			if err != nil {
				return BackfillCandlesRequest{}, err
			}
			req.HasFromSequence = v
		case fieldBackfillReqFromSeqExclusive:
			v, err := parseUint64(payload)
			if err != nil {
				return BackfillCandlesRequest{}, err
			}
			req.FromSequenceExclusive = v
		case fieldBackfillReqHasEndTsMs:
			v, err := parseBool(payload)
			if err != nil {
				return BackfillCandlesRequest{}, err
			}
			req.HasEndTsMs = v
		case fieldBackfillReqEndTsMs:
			v, err := parseInt64(payload)
			if err != nil {
				return BackfillCandlesRequest{}, err
			}
			req.EndTsMs = v
		case fieldBackfillReqLimit:
			v, err := parseUint32(payload)
			if err != nil {
				return BackfillCandlesRequest{}, err
			}
			req.Limit = v
		}
	}
	return req, nil
}

// BackfillCandlesResponse answers a BackfillCandlesRequest. HasMore signals
// the coordinator to issue another request starting at NextSequence.
type BackfillCandlesResponse struct {
	Key           candle.Key
	StartSequence uint64
	Candles       []candle.Candle
	HasMore       bool
	NextSequence  uint64
}

func EncodeBackfillCandlesResponse(resp BackfillCandlesResponse) []byte {
	w := newFieldWriter()
	w.putBytes(fieldBackfillRespKey, encodeStreamKey(resp.Key))
	w.putUint64(fieldBackfillRespStartSequence, resp.StartSequence)
	w.putBytes(fieldBackfillRespCandles, encodeCandles(resp.Candles))
	w.putBool(fieldBackfillRespHasMore, resp.HasMore)
	if resp.HasMore {
		w.putUint64(fieldBackfillRespNextSequence, resp.NextSequence)
	}
	return w.bytes()
}

func DecodeBackfillCandlesResponse(data []byte) (BackfillCandlesResponse, error) {
	var resp BackfillCandlesResponse
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return BackfillCandlesResponse{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldBackfillRespKey:
			k, err := decodeStreamKey(payload)
			if err != nil {
				return BackfillCandlesResponse{}, err
			}
			resp.Key = k
		case fieldBackfillRespStartSequence:
			v, err := parseUint64(payload)
			if err != nil {
				return BackfillCandlesResponse{}, err
			}
			resp.StartSequence = v
		case fieldBackfillRespCandles:
			cs, err := decodeCandles(payload)
			if err != nil {
				return BackfillCandlesResponse{}, err
			}
			resp.Candles = cs
		case fieldBackfillRespHasMore:
			v, err := parseBool(payload)
			if err != nil {
				return BackfillCandlesResponse{}, err
			}
			resp.HasMore = v
		case fieldBackfillRespNextSequence:
			v, err := parseUint64(payload)
			if err != nil {
				return BackfillCandlesResponse{}, err
			}
			resp.NextSequence = v
		}
	}
	return resp, nil
}

// GetCursorRequest asks the simulator for the highest sequence it has ever
// produced for Key. The simulator answers it; the coordinator does not
// send it.
type GetCursorRequest struct {
	Key candle.Key
}

func EncodeGetCursorRequest(req GetCursorRequest) []byte {
	w := newFieldWriter()
	w.putBytes(fieldGetCursorReqKey, encodeStreamKey(req.Key))
	return w.bytes()
}

func DecodeGetCursorRequest(data []byte) (GetCursorRequest, error) {
	var req GetCursorRequest
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return GetCursorRequest{}, err
		}
		if !ok {
			break
		}
		if id == fieldGetCursorReqKey {
			k, err := decodeStreamKey(payload)
			if err != nil {
				return GetCursorRequest{}, err
			}
			req.Key = k
		}
	}
	return req, nil
}

type GetCursorResponse struct {
	Key            candle.Key
	LatestSequence uint64
	LatestTsMs     int64
}

func EncodeGetCursorResponse(resp GetCursorResponse) []byte {
	w := newFieldWriter()
	w.putBytes(fieldGetCursorRespKey, encodeStreamKey(resp.Key))
	w.putUint64(fieldGetCursorRespLatestSeq, resp.LatestSequence)
	w.putInt64(fieldGetCursorRespLatestTsMs, resp.LatestTsMs)
	return w.bytes()
}

func DecodeGetCursorResponse(data []byte) (GetCursorResponse, error) {
	var resp GetCursorResponse
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return GetCursorResponse{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldGetCursorRespKey:
			k, err := decodeStreamKey(payload)
			if err != nil {
				return GetCursorResponse{}, err
			}
			resp.Key = k
		case fieldGetCursorRespLatestSeq:
			v, err := parseUint64(payload)
			if err != nil {
				return GetCursorResponse{}, err
			}
			resp.LatestSequence = v
		case fieldGetCursorRespLatestTsMs:
			v, err := parseInt64(payload)
			if err != nil {
				return GetCursorResponse{}, err
			}
			resp.LatestTsMs = v
		}
	}
	return resp, nil
}

// ErrorResponse replaces any response body when the simulator cannot
// satisfy a request (undecodable envelope, malformed body, or a message
// type it does not answer).
type ErrorResponse struct {
	Code    string
	Message string
}

func EncodeErrorResponse(e ErrorResponse) []byte {
	w := newFieldWriter()
	w.putString(fieldErrorCode, e.Code)
	w.putString(fieldErrorMessage, e.Message)
	return w.bytes()
}

func DecodeErrorResponse(data []byte) (ErrorResponse, error) {
	var e ErrorResponse
	r := newFieldReader(data)
	for {
		id, payload, ok, err := r.next()
		if err != nil {
			return ErrorResponse{}, err
		}
		if !ok {
			break
		}
		switch id {
		case fieldErrorCode:
			e.Code = string(payload)
		case fieldErrorMessage:
			e.Message = string(payload)
		}
	}
	return e, nil
}

// Error implements the error interface so an ErrorResponse can be returned
// directly from a REQ/REP round trip.
func (e ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
