package shared

import "fmt"

var (
	// Configuration errors. Missing credentials are a warning at startup;
	// the resulting authentication failure surfaces later as an API error.
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Transient errors: a rerun (or a retry with backoff) may succeed.
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrBatchTooLarge      = fmt.Errorf("batch exceeds request body budget")

	// Invariant violations: fatal, nothing from the offending batch is
	// marked, and the raw response is surfaced for diagnosis.
	ErrAcceptedMismatch = fmt.Errorf("per-item accepted sum disagrees with batch-level accepted count")
	ErrListenTooLarge   = fmt.Errorf("a single listen is too large to submit")
	ErrImportFailed     = fmt.Errorf("history import failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidListen   = fmt.Errorf("invalid listen")
)
