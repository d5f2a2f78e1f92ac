package jobxmemory

import "github.com/ryan12324/openassistant/pkg/errx"

var memoryErrors = errx.NewRegistry("JOBX_MEMORY")

var (
	ErrNotFound   = memoryErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrNotClaimed = memoryErrors.Register("NOT_CLAIMED", errx.TypeConflict, 409, "Job is not in processing state")
)
