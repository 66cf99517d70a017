package authpipeline

import (
	"context"

	"github.com/haloedge/authcore/internal/fetcher"
	"github.com/haloedge/authcore/internal/issuer"
	"github.com/haloedge/authcore/internal/jwt"
	"github.com/haloedge/authcore/internal/keycache"
	"github.com/haloedge/authcore/internal/policy"
	"github.com/haloedge/authcore/internal/tokencache"
)

// Request is the pipeline's view of an inbound call: enough to locate a
// bearer credential and, on Allow, record the resolved identity.
type Request interface {
	// FindHeader returns a header's value and whether it was present.
	FindHeader(name string) (string, bool)
	// FindQuery returns a query parameter's value and whether it was present.
	FindQuery(name string) (string, bool)
	// SetAuthToken records the extracted bearer token, before it has been
	// parsed or verified, so the surrounding request can log or forward it.
	SetAuthToken(token string)
	// SetUserInfo records the verified identity on an Allow outcome.
	SetUserInfo(info jwt.UserInfo)
}

// Method is C4's per-method policy, consulted during S4_CheckPolicy.
type Method = policy.MethodPolicy

// KeySource resolves a vault:// key reference directly, bypassing HTTP.
// A ServiceContext without Vault-backed issuers may return nil.
type KeySource interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// ServiceContext wires the concrete C1-C6 components a Pipeline runs against.
type ServiceContext interface {
	ServiceName() string
	TokenCache() tokencache.Cache
	KeyCache() keycache.Cache
	IssuerRegistry() issuer.Registry
	Fetcher() fetcher.HttpFetcher
	Validator() jwt.TokenValidator
	// KeySource returns the Vault-backed key resolver, or nil if none is
	// configured for this service.
	KeySource() KeySource
}
