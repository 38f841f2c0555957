package model

import "time"

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the normalized outcome of one pipeline job. It is written at
// most once per job and never mutated afterwards; session id is the only
// lookup key.
type Result struct {
	SessionID             string    `json:"session_id"`
	Status                string    `json:"status"`
	Transcription         *string   `json:"transcription,omitempty"`
	TranscriptionDuration *float64  `json:"transcription_duration_seconds,omitempty"`
	ProcessingTime        float64   `json:"processing_time_seconds"`
	TTSAudioRef           string    `json:"tts_audio_ref,omitempty"`
	ErrorMessage          string    `json:"error_message,omitempty"`
	TTSError              string    `json:"tts_error,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// Succeeded reports whether the transcription stage produced text.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess && r.Transcription != nil
}
