package message

import (
	"time"

	"github.com/prcore/prcore/eventlog"
)

// Payload is implemented by every typed message payload.
type Payload interface {
	// Kind returns the wire tag this payload is carried under.
	Kind() Kind
}

// OnlineReport announces a plugin's presence and declared capabilities.
// Sent unsolicited on a ticker and in answer to an ONLINE_INQUIRY.
type OnlineReport struct {
	PluginKey   string         `json:"plugin_key"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func (*OnlineReport) Kind() Kind { return KindOnlineReport }

// OnlineInquiry asks every plugin to report presence.
type OnlineInquiry struct{}

func (*OnlineInquiry) Kind() Kind { return KindOnlineInquiry }

// TrainingData offers a processed training table to one plugin. Parameters
// and AdditionalInfo carry that plugin's own overrides, so two plugins
// receive requests identical apart from these two maps.
type TrainingData struct {
	ProjectID      string         `json:"project_id"`
	DataArtifact   string         `json:"data_artifact"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

func (*TrainingData) Kind() Kind { return KindTrainingData }

// DataReport is a plugin's applicability verdict on offered training data.
// Applicable=false is a normal reply, not an error. An accepting plugin may
// attach dataset info it derived while inspecting the offer; the orchestrator
// merges it into the plugin record and carries it on later training offers.
type DataReport struct {
	ProjectID      string         `json:"project_id"`
	PluginKey      string         `json:"plugin_key"`
	Applicable     bool           `json:"applicable"`
	Detail         string         `json:"detail,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

func (*DataReport) Kind() Kind { return KindDataReport }

// ErrorReport signals a caught worker-side fault. The owning plugin moves to
// ERROR; the worker process itself stays alive.
type ErrorReport struct {
	ProjectID string `json:"project_id"`
	PluginKey string `json:"plugin_key"`
	Detail    string `json:"detail"`
}

func (*ErrorReport) Kind() Kind { return KindErrorReport }

// TrainingStart tells a plugin to train on previously delivered data.
type TrainingStart struct {
	ProjectID string `json:"project_id"`
}

func (*TrainingStart) Kind() Kind { return KindTrainingStart }

// ModelName reports the artifact name of a freshly trained model. The name
// is the only reference; no identifying metadata lives in the artifact.
type ModelName struct {
	ProjectID string `json:"project_id"`
	PluginKey string `json:"plugin_key"`
	Name      string `json:"name"`
}

func (*ModelName) Kind() Kind { return KindModelName }

// StreamingPrepare tells a plugin to load its model for a project ahead of
// streaming.
type StreamingPrepare struct {
	ProjectID string `json:"project_id"`
	ModelName string `json:"model_name"`
}

func (*StreamingPrepare) Kind() Kind { return KindStreamingPrepare }

// StreamingReady confirms a plugin has its model loaded.
type StreamingReady struct {
	ProjectID string `json:"project_id"`
	PluginKey string `json:"plugin_key"`
}

func (*StreamingReady) Kind() Kind { return KindStreamingReady }

// Prescription is a single algorithm output attached to an event or case.
type Prescription struct {
	Date   time.Time `json:"date"`
	Type   string    `json:"type"`
	Plugin string    `json:"plugin"`
	Output any       `json:"output"`
}

// StreamingPrescriptionRequest asks one plugin to prescribe for a live event,
// given the case prefix observed so far.
type StreamingPrescriptionRequest struct {
	ProjectID string          `json:"project_id"`
	EventID   string          `json:"event_id"`
	CaseID    string          `json:"case_id"`
	Prefix    *eventlog.Table `json:"prefix"`
}

func (*StreamingPrescriptionRequest) Kind() Kind { return KindStreamingPrescriptionRequest }

// StreamingPrescriptionResult carries one plugin's prescription for one
// event. A plugin that cannot serve the request replies with a nil
// Prescription rather than staying silent.
type StreamingPrescriptionResult struct {
	ProjectID    string        `json:"project_id"`
	PluginKey    string        `json:"plugin_key"`
	EventID      string        `json:"event_id"`
	Prescription *Prescription `json:"prescription"`
}

func (*StreamingPrescriptionResult) Kind() Kind { return KindStreamingPrescriptionResult }

// StreamingStop tells a plugin a project stopped streaming so it may evict
// its cached model state.
type StreamingStop struct {
	ProjectID string `json:"project_id"`
}

func (*StreamingStop) Kind() Kind { return KindStreamingStop }

// DatasetPrescriptionRequest asks one plugin to prescribe for every case of
// a dataset artifact.
type DatasetPrescriptionRequest struct {
	ProjectID    string `json:"project_id"`
	ResultKey    string `json:"result_key"`
	DataArtifact string `json:"data_artifact"`
}

func (*DatasetPrescriptionRequest) Kind() Kind { return KindDatasetPrescriptionRequest }

// DatasetPrescriptionResult carries one plugin's per-case prescriptions for
// a bulk request. Applicable=false with empty Results is the explicit "not
// applicable" reply that keeps completion counting moving.
type DatasetPrescriptionResult struct {
	ProjectID  string                  `json:"project_id"`
	PluginKey  string                  `json:"plugin_key"`
	ResultKey  string                  `json:"result_key"`
	Applicable bool                    `json:"applicable"`
	Results    map[string]Prescription `json:"results,omitempty"`
}

func (*DatasetPrescriptionResult) Kind() Kind { return KindDatasetPrescriptionResult }

// ProcessRequest asks the transformation engine to clean and label a raw
// event-log artifact according to a column definition.
type ProcessRequest struct {
	ProjectID   string             `json:"project_id"`
	RequestKey  string             `json:"request_key"`
	RawArtifact string             `json:"raw_artifact"`
	Definition  eventlog.Definition `json:"definition"`
}

func (*ProcessRequest) Kind() Kind { return KindProcessRequest }

// ProcessResult answers a ProcessRequest. An empty ResultArtifact means the
// engine failed; Detail then carries the reason. The coordinator treats "no
// result" as a hard failure, never as something to retry.
type ProcessResult struct {
	ProjectID      string `json:"project_id"`
	RequestKey     string `json:"request_key"`
	ResultArtifact string `json:"result_artifact,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

func (*ProcessResult) Kind() Kind { return KindProcessResult }
