package connectorx

import "github.com/ryan12324/openassistant/pkg/errx"

var connectorErrors = errx.NewRegistry("CONNECTORX")

var (
	ErrNotFound            = connectorErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Connector definition not found")
	ErrNoFactory           = connectorErrors.Register("NO_FACTORY", errx.TypeInternal, 500, "No factory registered for connector")
	ErrInvalidConfig       = connectorErrors.Register("INVALID_CONFIG", errx.TypeValidation, 400, "Invalid connector configuration")
	ErrConnectFailed       = connectorErrors.Register("CONNECT_FAILED", errx.TypeExternal, 502, "Connector failed to connect")
	ErrDuplicateDefinition = connectorErrors.Register("DUPLICATE_DEFINITION", errx.TypeConflict, 409, "Connector definition id registered twice")
	ErrInvalidDefinition   = connectorErrors.Register("INVALID_DEFINITION", errx.TypeValidation, 400, "Invalid connector definition")
)
