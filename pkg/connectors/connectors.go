// Package connectors wires the concrete connector implementations into a
// catalog and factory map for connectorx.Registry.
package connectors

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/ryan12324/openassistant/pkg/connectors/email"
	"github.com/ryan12324/openassistant/pkg/connectors/notes"
	"github.com/ryan12324/openassistant/pkg/connectors/s3files"
	"github.com/ryan12324/openassistant/pkg/connectors/webhook"
	"github.com/ryan12324/openassistant/pkg/connectorx"
)

// Deps are the shared clients connectors are built on. Nil fields leave the
// matching connector registered but unable to connect.
type Deps struct {
	HTTPClient *http.Client
	Redis      redis.UniversalClient
	S3         s3files.ClientFunc
	SES        email.API
	EmailFrom  string
}

// Definitions is the static catalog content.
func Definitions() []connectorx.Definition {
	return []connectorx.Definition{
		email.Definition(),
		notes.Definition(),
		s3files.Definition(),
		webhook.Definition(),
	}
}

func NewCatalog() *connectorx.Catalog {
	return connectorx.MustCatalog(Definitions()...)
}

// Factories maps every catalog id to its factory.
func Factories(deps Deps) map[string]connectorx.Factory {
	return map[string]connectorx.Factory{
		email.ID:   email.Factory(deps.SES, deps.EmailFrom),
		notes.ID:   notes.Factory(deps.Redis),
		s3files.ID: s3files.Factory(deps.S3),
		webhook.ID: webhook.Factory(deps.HTTPClient),
	}
}
