// Package policy implements C4: per-method issuer and audience policy,
// backed by static configuration loaded at startup.
package policy

import (
	"github.com/haloedge/authcore/internal/gwconfig"
	"github.com/haloedge/authcore/internal/jwt"
)

// MethodPolicy is C4's operation surface.
type MethodPolicy interface {
	// RequiresAuth reports whether this method demands a bearer credential.
	RequiresAuth() bool

	// IssuerAllowed reports whether issuer is permitted to call this method.
	IssuerAllowed(issuer string) bool

	// AudiencesAllowed reports whether aud satisfies this method's audience
	// policy for the given issuer (the caller is responsible for the
	// service_name shortcut described in the pipeline's policy evaluation).
	AudiencesAllowed(issuer string, aud jwt.Audience) bool
}

type staticPolicy struct {
	cfg gwconfig.MethodConfig
}

// New builds a MethodPolicy from static method configuration.
func New(cfg gwconfig.MethodConfig) MethodPolicy {
	return &staticPolicy{cfg: cfg}
}

func (p *staticPolicy) RequiresAuth() bool {
	return p.cfg.RequiresAuth
}

func (p *staticPolicy) IssuerAllowed(issuer string) bool {
	for _, allowed := range p.cfg.AllowedIssuers {
		if allowed == issuer {
			return true
		}
	}
	return false
}

func (p *staticPolicy) AudiencesAllowed(issuer string, aud jwt.Audience) bool {
	allowed, ok := p.cfg.AllowedAudiences[issuer]
	if !ok {
		return false
	}
	return aud.ContainsAny(allowed...)
}

// Registry resolves a MethodPolicy by method name.
type Registry interface {
	Policy(method string) (MethodPolicy, bool)
}

type staticRegistry struct {
	policies map[string]MethodPolicy
}

// NewRegistry builds a Registry from the full set of method configs.
func NewRegistry(methods map[string]gwconfig.MethodConfig) Registry {
	policies := make(map[string]MethodPolicy, len(methods))
	for name, cfg := range methods {
		policies[name] = New(cfg)
	}
	return &staticRegistry{policies: policies}
}

func (r *staticRegistry) Policy(method string) (MethodPolicy, bool) {
	p, ok := r.policies[method]
	return p, ok
}

var (
	_ MethodPolicy = (*staticPolicy)(nil)
	_ Registry     = (*staticRegistry)(nil)
)
