package authpipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haloedge/authcore/internal/issuer"
	"github.com/haloedge/authcore/internal/jwt"
	"github.com/haloedge/authcore/internal/keycache"
	"github.com/haloedge/authcore/internal/observability"
)

// Pipeline runs C7's state machine against a single ServiceContext.
type Pipeline struct {
	svc    ServiceContext
	logger observability.Logger
}

// New builds a Pipeline. If logger is nil a no-op logger is used.
func New(svc ServiceContext, logger observability.Logger) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{svc: svc, logger: logger}
}

// step threads one request's state through the pipeline's stages. It is
// created fresh per Check call and never shared across goroutines except
// via the two suspension points' continuation closures.
type step struct {
	p      *Pipeline
	ctx    context.Context
	req    Request
	method Method
	logger observability.Logger

	start time.Time
	token string

	cacheHit bool
	claims   *jwt.Claims
	userInfo jwt.UserInfo

	completion Completion
}

// Check runs the pipeline for one request. completion fires exactly once,
// synchronously if no suspension point is reached, asynchronously otherwise.
func (p *Pipeline) Check(ctx context.Context, req Request, method Method, completion Completion) {
	correlationID := uuid.NewString()
	ctx = observability.ContextWithCorrelationID(ctx, correlationID)

	s := &step{
		p:          p,
		ctx:        ctx,
		req:        req,
		method:     method,
		logger:     p.logger.WithContext(ctx),
		start:      time.Now(),
		completion: completion,
	}
	s.runStart()
}

// runStart is S0_Start.
func (s *step) runStart() {
	if !s.method.RequiresAuth() {
		s.finish(Allow())
		return
	}

	token, ok := extractToken(s.req)
	if !ok {
		s.finish(Deny(MsgMissingCredentials))
		return
	}
	s.token = token
	s.req.SetAuthToken(token)
	s.logger.Debug("token extracted")
	s.tokenCacheLookup()
}

// tokenCacheLookup is S1_TokenCacheLookup.
func (s *step) tokenCacheLookup() {
	entry, hit := s.p.svc.TokenCache().Lookup(s.token)
	if hit && entry.TokenExpiry.After(time.Now()) {
		s.userInfo = entry.UserInfo
		s.cacheHit = true
		s.logger.Debug("token cache hit")
		s.checkPolicy()
		return
	}
	if hit {
		// Entry outlived its token's expiry: treat as a miss and let
		// re-parsing and re-verification run their course.
		s.p.svc.TokenCache().Remove(s.token)
	}
	s.parseToken()
}

// parseToken is S2_ParseToken.
func (s *step) parseToken() {
	claims, err := s.p.svc.Validator().Parse(s.token)
	if err != nil {
		s.logger.Debug("token parse failed", observability.Error(err))
		s.finish(denyForParseError(err))
		return
	}
	s.claims = claims
	s.userInfo = claims.ToUserInfo()
	s.checkPolicy()
}

// checkPolicy is S4_CheckPolicy. Issuer is checked before audience: a
// request from a disallowed issuer is denied for that reason even if its
// audience would otherwise have passed. A token whose audience names this
// service directly is accepted regardless of the method's allow-list: the
// allow-list exists to let a method accept third parties, not to gate
// tokens the service itself is the intended recipient of.
func (s *step) checkPolicy() {
	iss := s.userInfo.Issuer

	if !s.method.IssuerAllowed(iss) {
		s.finish(Deny(MsgIssuerNotAllowed))
		return
	}
	if !s.userInfo.Audiences.Contains(s.p.svc.ServiceName()) && !s.method.AudiencesAllowed(iss, s.userInfo.Audiences) {
		s.finish(Deny(MsgAudienceNotAllowed))
		return
	}

	if s.cacheHit {
		// A cache hit already carries a successfully verified signature;
		// only the policy check above needs to be repeated per request.
		s.finish(Allow())
		return
	}
	s.keyLookup()
}

// keyLookup is S5_KeyLookup.
func (s *step) keyLookup() {
	iss := s.claims.Issuer

	if entry, ok := s.p.svc.KeyCache().Get(iss); ok {
		if entry.IsNegative {
			s.finish(Deny(MsgCannotDetermineKey))
			return
		}
		s.verify(entry.KeyBlob)
		return
	}

	if ks := s.p.svc.KeySource(); ks != nil {
		if ref, ok := s.p.svc.IssuerRegistry().VaultRef(iss); ok {
			s.fetchFromVault(ks, ref)
			return
		}
	}

	url, source := s.p.svc.IssuerRegistry().ResolveKeyURL(iss)
	switch source {
	case issuer.Configured, issuer.Discovered:
		if url == "" {
			s.finish(Deny(MsgCannotDetermineKey))
			return
		}
		s.fetchKeys(url)
	case issuer.Unknown:
		s.discover(url)
	default:
		s.finish(Deny(MsgCannotDetermineKey))
	}
}

// discover is S6_Discover, the first of the pipeline's two suspension
// points. A failed or malformed discovery response is recorded as a
// sticky negative entry: the next request for this issuer skips
// discovery entirely until an out-of-band Reset.
func (s *step) discover(discoveryURL string) {
	iss := s.claims.Issuer
	s.p.svc.Fetcher().Get(s.ctx, "discovery", discoveryURL, func(status int, body []byte, err error) {
		if err != nil || status != http.StatusOK {
			s.p.svc.IssuerRegistry().RecordDiscovered(iss, "")
			s.finish(Deny(MsgDiscoveryFetchFailed))
			return
		}

		jwksURI, perr := parseDiscoveryDocument(body)
		if perr != nil {
			s.p.svc.IssuerRegistry().RecordDiscovered(iss, "")
			s.finish(Deny(MsgDiscoveryFetchFailed))
			return
		}

		s.p.svc.IssuerRegistry().RecordDiscovered(iss, jwksURI)
		s.fetchKeys(jwksURI)
	})
}

// fetchKeys is S7_FetchKeys, the pipeline's second suspension point. The
// key set is cached only on success, per the cache-insertion ordering
// invariant: a fetch failure is never cached, positive or negative.
func (s *step) fetchKeys(keysURL string) {
	iss := s.claims.Issuer
	s.p.svc.Fetcher().Get(s.ctx, "keys", keysURL, func(status int, body []byte, err error) {
		if err != nil || status != http.StatusOK || len(body) == 0 {
			s.finish(Deny(MsgKeyFetchFailed))
			return
		}
		s.p.svc.KeyCache().Update(iss, body, time.Now().Add(keycache.DefaultTTL))
		s.verify(body)
	})
}

// fetchFromVault takes the same shortcut as fetchKeys, except the key
// material comes from a synchronous Vault read rather than an HTTP GET.
// A failure is, likewise, never cached.
func (s *step) fetchFromVault(ks KeySource, ref string) {
	iss := s.claims.Issuer
	blob, err := ks.Resolve(s.ctx, ref)
	if err != nil || len(blob) == 0 {
		s.finish(Deny(MsgKeyFetchFailed))
		return
	}
	s.p.svc.KeyCache().Update(iss, blob, time.Now().Add(keycache.DefaultTTL))
	s.verify(blob)
}

// verify is S8_Verify, the final stage before S_Done on a would-be Allow.
func (s *step) verify(keyBlob []byte) {
	if err := s.p.svc.Validator().Verify(s.token, keyBlob); err != nil {
		s.logger.Debug("signature verification failed", observability.Error(err))
		s.finish(denyForVerifyError(err))
		return
	}
	s.p.svc.TokenCache().Insert(s.token, s.userInfo, s.claims.Expiry)
	s.finish(Allow())
}

// finish is S_Done: it records the outcome exactly once and invokes
// completion. On an authenticated Allow, the resolved identity is written
// back to req; a method that needs no auth leaves req untouched.
func (s *step) finish(outcome Outcome) {
	if outcome.Allowed() && s.token != "" {
		s.req.SetUserInfo(s.userInfo)
	}

	result := "deny"
	reason := outcome.DenyReason()
	if outcome.Allowed() {
		result = "allow"
		reason = ""
	}
	observability.GetMetrics().RecordPipelineOutcome(result, reason, time.Since(s.start))
	s.logger.Debug("auth pipeline decision",
		observability.Bool("allow", outcome.Allowed()),
		observability.String("deny_reason", reason))

	s.completion(outcome)
}
