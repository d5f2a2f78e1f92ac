package jobxredis

import "github.com/ryan12324/openassistant/pkg/errx"

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrEnqueue    = redisErrors.Register("ENQUEUE", errx.TypeExternal, 500, "Redis enqueue failed")
	ErrDequeue    = redisErrors.Register("DEQUEUE", errx.TypeExternal, 500, "Redis dequeue failed")
	ErrGetJob     = redisErrors.Register("GET_JOB", errx.TypeExternal, 500, "Redis get job failed")
	ErrComplete   = redisErrors.Register("COMPLETE", errx.TypeExternal, 500, "Redis complete failed")
	ErrFail       = redisErrors.Register("FAIL", errx.TypeExternal, 500, "Redis fail failed")
	ErrList       = redisErrors.Register("LIST", errx.TypeExternal, 500, "Redis list failed")
	ErrNotFound   = redisErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found in Redis")
	ErrNotClaimed = redisErrors.Register("NOT_CLAIMED", errx.TypeConflict, 409, "Job not found or not in processing state")
	ErrCorrupt    = redisErrors.Register("CORRUPT", errx.TypeInternal, 500, "Stored job hash is malformed")
)
