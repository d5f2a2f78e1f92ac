package assistantpostgres

import "github.com/ryan12324/openassistant/pkg/errx"

var pgErrors = errx.NewRegistry("ASSISTANT_POSTGRES")

var (
	ErrFindOrCreate = pgErrors.Register("FIND_OR_CREATE", errx.TypeExternal, 500, "Postgres conversation upsert failed")
	ErrGet          = pgErrors.Register("GET", errx.TypeExternal, 500, "Postgres conversation lookup failed")
	ErrAppend       = pgErrors.Register("APPEND", errx.TypeExternal, 500, "Postgres message append failed")
	ErrMessages     = pgErrors.Register("MESSAGES", errx.TypeExternal, 500, "Postgres message listing failed")
	ErrCompact      = pgErrors.Register("COMPACT", errx.TypeExternal, 500, "Postgres compaction failed")
	ErrMigrate      = pgErrors.Register("MIGRATE", errx.TypeExternal, 500, "Postgres conversations migration failed")
)
