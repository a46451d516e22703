// Package message defines the wire protocol spoken between the coordinator,
// the transformation engine and the plugin workers: a closed set of message
// kinds, one typed payload per kind, and the {type, data} envelope they are
// carried in. Decoding dispatches on the kind tag into the typed payload so
// no consumer ever reads stringly-typed fields out of raw maps.
package message

// Kind identifies a message type on the wire.
type Kind string

// All message kinds of the orchestration protocol.
const (
	KindOnlineReport                 Kind = "ONLINE_REPORT"
	KindOnlineInquiry                Kind = "ONLINE_INQUIRY"
	KindTrainingData                 Kind = "TRAINING_DATA"
	KindDataReport                   Kind = "DATA_REPORT"
	KindErrorReport                  Kind = "ERROR_REPORT"
	KindTrainingStart                Kind = "TRAINING_START"
	KindModelName                    Kind = "MODEL_NAME"
	KindStreamingPrepare             Kind = "STREAMING_PREPARE"
	KindStreamingReady               Kind = "STREAMING_READY"
	KindStreamingPrescriptionRequest Kind = "STREAMING_PRESCRIPTION_REQUEST"
	KindStreamingPrescriptionResult  Kind = "STREAMING_PRESCRIPTION_RESULT"
	KindStreamingStop                Kind = "STREAMING_STOP"
	KindDatasetPrescriptionRequest   Kind = "DATASET_PRESCRIPTION_REQUEST"
	KindDatasetPrescriptionResult    Kind = "DATASET_PRESCRIPTION_RESULT"
	KindProcessRequest               Kind = "PROCESS_REQUEST"
	KindProcessResult                Kind = "PROCESS_RESULT"
)

// Kinds lists every defined kind, in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindOnlineReport,
		KindOnlineInquiry,
		KindTrainingData,
		KindDataReport,
		KindErrorReport,
		KindTrainingStart,
		KindModelName,
		KindStreamingPrepare,
		KindStreamingReady,
		KindStreamingPrescriptionRequest,
		KindStreamingPrescriptionResult,
		KindStreamingStop,
		KindDatasetPrescriptionRequest,
		KindDatasetPrescriptionResult,
		KindProcessRequest,
		KindProcessResult,
	}
}

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	_, ok := payloadFactories[k]
	return ok
}

// String returns the wire tag.
func (k Kind) String() string {
	return string(k)
}
