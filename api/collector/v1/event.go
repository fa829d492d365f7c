package collectorv1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Field names of an encoded event
const (
	fieldCheckID    = "check_id"
	fieldKind       = "kind"
	fieldTimestamp  = "timestamp"
	fieldOutcome    = "outcome"
	fieldLatencyMs  = "latency_ms"
	fieldStatusCode = "status_code"
	fieldError      = "error"
)

// EncodeEvent converts a result event to its wire form.
func EncodeEvent(e types.Event) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		fieldCheckID:   e.CheckID.String(),
		fieldKind:      string(e.Kind),
		fieldTimestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldOutcome:   string(e.Outcome),
		fieldLatencyMs: float64(e.Latency) / float64(time.Millisecond),
	}
	if e.StatusCode != 0 {
		fields[fieldStatusCode] = e.StatusCode
	}
	if e.Error != "" {
		fields[fieldError] = e.Error
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.CheckID, err)
	}
	return s, nil
}

// DecodeEvent parses the wire form of a result event.
func DecodeEvent(s *structpb.Struct) (types.Event, error) {
	var e types.Event
	if s == nil {
		return e, fmt.Errorf("decode event: empty message")
	}
	f := s.GetFields()

	id, err := uuid.Parse(f[fieldCheckID].GetStringValue())
	if err != nil {
		return e, fmt.Errorf("decode event: check_id: %w", err)
	}
	e.CheckID = id

	if ts := f[fieldTimestamp].GetStringValue(); ts != "" {
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return e, fmt.Errorf("decode event: timestamp: %w", err)
		}
	}

	e.Kind = types.CheckKind(f[fieldKind].GetStringValue())
	e.Outcome = types.Outcome(f[fieldOutcome].GetStringValue())
	switch e.Outcome {
	case types.OutcomeSuccess, types.OutcomeFailure:
	default:
		return e, fmt.Errorf("decode event: unknown outcome %q", e.Outcome)
	}

	e.Latency = time.Duration(f[fieldLatencyMs].GetNumberValue() * float64(time.Millisecond))
	e.StatusCode = int(f[fieldStatusCode].GetNumberValue())
	e.Error = f[fieldError].GetStringValue()
	return e, nil
}
