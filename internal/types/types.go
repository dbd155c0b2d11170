// Package types provides shared type definitions for the application.
package types

import "time"

// State is the recording orchestrator state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the orchestrator pushed to the status presentation.
type Status struct {
	State     State     `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
	Since     time.Time `json:"since"`
	Samples   int       `json:"samples,omitempty"` // Drained sample count, set when transcribing
}

// ErrorKind classifies a failed recording attempt for user-facing messages.
type ErrorKind string

const (
	ErrorPermissionDenied    ErrorKind = "permission_denied"
	ErrorEngineStartFailed   ErrorKind = "engine_start_failed"
	ErrorNoAudioSamples      ErrorKind = "no_audio_samples"
	ErrorModelLoadingFailed  ErrorKind = "model_loading_failed"
	ErrorTranscriptionFailed ErrorKind = "transcription_failed"
	ErrorUnknown             ErrorKind = "unknown"
)

// Message returns a human-readable reason for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorPermissionDenied:
		return "Microphone access is not granted."
	case ErrorEngineStartFailed:
		return "Could not start the audio input."
	case ErrorNoAudioSamples:
		return "No audio was recorded."
	case ErrorModelLoadingFailed:
		return "The speech model could not be loaded."
	case ErrorTranscriptionFailed:
		return "Transcription failed."
	default:
		return "Something went wrong."
	}
}
