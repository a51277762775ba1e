package api

import (
	"context"

	"github.com/sentra-io/sentra-backend/internal/audit"
	"github.com/sentra-io/sentra-backend/internal/authz"
	"github.com/sentra-io/sentra-backend/internal/config"
	"github.com/sentra-io/sentra-backend/internal/database"
	"github.com/sentra-io/sentra-backend/internal/keyauth"
	"github.com/sentra-io/sentra-backend/internal/ratelimit"
)

// KeyAdminStore is the management surface of the credential store; the
// Postgres and memory stores both provide it.
type KeyAdminStore interface {
	keyauth.KeyStore
	Create(ctx context.Context, rec *keyauth.KeyRecord) error
	Revoke(ctx context.Context, keyID string) error
}

// Server owns every injected dependency the handlers touch. No package
// globals: lifetimes are explicit and wiring happens once in main.
type Server struct {
	cfg       *config.Config
	auth      *keyauth.Authenticator
	evaluator *authz.Evaluator
	limiter   *ratelimit.Limiter
	recorder  *audit.Recorder
	sink      audit.Sink
	sanitizer *audit.Sanitizer
	keys      KeyAdminStore
	cases     database.CaseRepo
	master    []byte
}

type Deps struct {
	Config    *config.Config
	Auth      *keyauth.Authenticator
	Evaluator *authz.Evaluator
	Limiter   *ratelimit.Limiter
	Recorder  *audit.Recorder
	Sink      audit.Sink
	Sanitizer *audit.Sanitizer
	Keys      KeyAdminStore
	Cases     database.CaseRepo
	Master    []byte
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:       d.Config,
		auth:      d.Auth,
		evaluator: d.Evaluator,
		limiter:   d.Limiter,
		recorder:  d.Recorder,
		sink:      d.Sink,
		sanitizer: d.Sanitizer,
		keys:      d.Keys,
		cases:     d.Cases,
		master:    d.Master,
	}
}
