package message

import (
	"encoding/json"
	"fmt"

	"github.com/prcore/prcore/errors"
)

// payloadFactories maps each kind to a constructor of its zero payload.
// This is the closed union: kinds absent here do not exist on the wire.
var payloadFactories = map[Kind]func() Payload{
	KindOnlineReport:                 func() Payload { return &OnlineReport{} },
	KindOnlineInquiry:                func() Payload { return &OnlineInquiry{} },
	KindTrainingData:                 func() Payload { return &TrainingData{} },
	KindDataReport:                   func() Payload { return &DataReport{} },
	KindErrorReport:                  func() Payload { return &ErrorReport{} },
	KindTrainingStart:                func() Payload { return &TrainingStart{} },
	KindModelName:                    func() Payload { return &ModelName{} },
	KindStreamingPrepare:             func() Payload { return &StreamingPrepare{} },
	KindStreamingReady:               func() Payload { return &StreamingReady{} },
	KindStreamingPrescriptionRequest: func() Payload { return &StreamingPrescriptionRequest{} },
	KindStreamingPrescriptionResult:  func() Payload { return &StreamingPrescriptionResult{} },
	KindStreamingStop:                func() Payload { return &StreamingStop{} },
	KindDatasetPrescriptionRequest:   func() Payload { return &DatasetPrescriptionRequest{} },
	KindDatasetPrescriptionResult:    func() Payload { return &DatasetPrescriptionResult{} },
	KindProcessRequest:               func() Payload { return &ProcessRequest{} },
	KindProcessResult:                func() Payload { return &ProcessResult{} },
}

// envelope is the wire form: {"type": ..., "data": ...}.
type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a payload into its envelope bytes.
func Encode(p Payload) ([]byte, error) {
	if p == nil {
		return nil, errors.WrapInvalid(errors.ErrDecodeFailed, "message", "Encode", "nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapInvalid(err, "message", "Encode", "marshal payload")
	}
	raw, err := json.Marshal(envelope{Type: p.Kind(), Data: data})
	if err != nil {
		return nil, errors.WrapInvalid(err, "message", "Encode", "marshal envelope")
	}
	return raw, nil
}

// Decode parses envelope bytes into the typed payload for its kind. Unknown
// kinds and malformed bodies return invalid-classified errors; consume loops
// log these and ack the delivery so poison messages are never redelivered.
func Decode(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.WrapInvalid(err, "message", "Decode", "unmarshal envelope")
	}
	factory, ok := payloadFactories[env.Type]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownKind, env.Type),
			"message", "Decode", "dispatch kind")
	}
	p := factory()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, p); err != nil {
			return nil, errors.WrapInvalid(err, "message", "Decode", "unmarshal payload")
		}
	}
	return p, nil
}
