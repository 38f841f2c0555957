package pipeline

import (
	"voicepipe-server-go/internal/util"
)

// Job is one accepted submission waiting for the worker. It is consumed
// exactly once and not persisted beyond the queue.
type Job struct {
	SessionID string
	AudioPath string
}

// Queue is the bounded FIFO between the ingestion surface and the
// workers.
type Queue = util.Queue[Job]

// NewQueue creates the job queue with an explicit capacity bound.
func NewQueue(capacity int) *Queue {
	return util.NewQueue[Job](capacity)
}
