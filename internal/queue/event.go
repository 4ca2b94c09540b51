// Package queue defines message payloads exchanged over the message broker.
package queue

// SubmittedQueueName is the durable queue procurement events go to.
const SubmittedQueueName = "procurement.submitted"

// ProcurementSubmittedEvent is published when a procurement request has been
// created in the PLM. It records how the attached quote was stored so
// downstream consumers can spot requests that fell back to inline files
// without querying the PLM.
type ProcurementSubmittedEvent struct {
	RequestID    string `json:"request_id"`
	LoginName    string `json:"login_name"`
	Name         string `json:"name"`
	StorageMode  string `json:"storage_mode"`
	FileRef      string `json:"file_ref,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	FallbackKind string `json:"fallback_kind,omitempty"`
	SubmittedAt  string `json:"submitted_at"`
}
