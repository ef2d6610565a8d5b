package session

import "errors"

var (
	// ErrNoActiveSession is returned when an interview has no live run.
	ErrNoActiveSession    = errors.New("no active session")
	ErrMicrophoneRequired = errors.New("microphone access is required")
	ErrNotActive          = errors.New("interview is not active")
	ErrAlreadyActive      = errors.New("interview already active")
	ErrInterviewCompleted = errors.New("interview already completed")
	ErrWrongCapture       = errors.New("operation not supported by the configured speech capture")
	ErrLLMUnavailable     = errors.New("no language model configured")
)
