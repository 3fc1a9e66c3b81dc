package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	ErrTimeout = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTaskNotFound       = fmt.Errorf("task not found")
	ErrUploadFailed       = fmt.Errorf("upload failed")
	ErrArtifactNotFound   = fmt.Errorf("artifact not found")
	ErrTaskNotComplete    = fmt.Errorf("task not complete")
	ErrTaskFailed         = fmt.Errorf("task failed")
	ErrTaskVanished       = fmt.Errorf("task no longer exists")

	// Persistence errors
	ErrRecordNotFound = fmt.Errorf("record not found")

	// Transport errors
	ErrMalformedSnapshot = fmt.Errorf("malformed status payload")
	ErrChannelClosed     = fmt.Errorf("channel closed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidUpload   = fmt.Errorf("invalid upload file")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
