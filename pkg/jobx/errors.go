package jobx

import "github.com/ryan12324/openassistant/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrInvalidJob         = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrInvalidPayload     = jobxErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, 400, "Job payload is not valid JSON")
	ErrNoHandler          = jobxErrors.Register("NO_HANDLER", errx.TypeValidation, 400, "No handler registered for job type")
	ErrHandlerPanic       = jobxErrors.Register("HANDLER_PANIC", errx.TypeInternal, 500, "Job handler panicked")
	ErrAlreadyRunning     = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Poller is already running")
	ErrInspectUnsupported = jobxErrors.Register("INSPECT_UNSUPPORTED", errx.TypeValidation, 501, "Job store does not support listing")
	ErrInvalidListFilter  = jobxErrors.Register("INVALID_LIST_FILTER", errx.TypeValidation, 400, "Invalid job list filter")
)
