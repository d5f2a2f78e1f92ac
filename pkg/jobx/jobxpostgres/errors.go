package jobxpostgres

import "github.com/ryan12324/openassistant/pkg/errx"

var pgErrors = errx.NewRegistry("JOBX_POSTGRES")

var (
	ErrEnqueue    = pgErrors.Register("ENQUEUE", errx.TypeExternal, 500, "Postgres enqueue failed")
	ErrDequeue    = pgErrors.Register("DEQUEUE", errx.TypeExternal, 500, "Postgres claim failed")
	ErrComplete   = pgErrors.Register("COMPLETE", errx.TypeExternal, 500, "Postgres complete failed")
	ErrFail       = pgErrors.Register("FAIL", errx.TypeExternal, 500, "Postgres fail failed")
	ErrGetJob     = pgErrors.Register("GET_JOB", errx.TypeExternal, 500, "Postgres get job failed")
	ErrList       = pgErrors.Register("LIST", errx.TypeExternal, 500, "Postgres list jobs failed")
	ErrMigrate    = pgErrors.Register("MIGRATE", errx.TypeExternal, 500, "Postgres jobs migration failed")
	ErrNotFound   = pgErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrNotClaimed = pgErrors.Register("NOT_CLAIMED", errx.TypeConflict, 409, "Job not found or not in processing state")
)
