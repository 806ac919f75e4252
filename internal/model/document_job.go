package model

type JobAction string

const (
	JobProcess   JobAction = "process"
	JobReprocess JobAction = "reprocess"
)

// DocumentJob is the message carried on the processing queue.
type DocumentJob struct {
	DocumentID string    `json:"document_id"`
	Action     JobAction `json:"action"`
}
