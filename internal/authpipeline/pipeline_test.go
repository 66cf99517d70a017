package authpipeline

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/haloedge/authcore/internal/fetcher"
	"github.com/haloedge/authcore/internal/gwconfig"
	"github.com/haloedge/authcore/internal/issuer"
	authjwt "github.com/haloedge/authcore/internal/jwt"
	"github.com/haloedge/authcore/internal/keycache"
	"github.com/haloedge/authcore/internal/policy"
	"github.com/haloedge/authcore/internal/tokencache"
)

// --- fixtures ---------------------------------------------------------

func signedToken(t *testing.T, issuerName, subject string, aud []string, exp time.Time) (string, []byte) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signKey, err := jwk.FromRaw(priv)
	require.NoError(t, err)
	require.NoError(t, signKey.Set(jwk.KeyIDKey, "kid-1"))
	require.NoError(t, signKey.Set(jwk.AlgorithmKey, jwa.RS256))

	pubKey, err := jwk.PublicKeyOf(signKey)
	require.NoError(t, err)
	require.NoError(t, pubKey.Set(jwk.KeyIDKey, "kid-1"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pubKey))
	jwksBlob, err := json.Marshal(set)
	require.NoError(t, err)

	builder := jwt.NewBuilder().
		Issuer(issuerName).
		Subject(subject).
		Audience(aud).
		Expiration(exp)

	token, err := builder.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, signKey))
	require.NoError(t, err)

	return string(signed), jwksBlob
}

type fakeRequest struct {
	headers   map[string]string
	query     map[string]string
	authToken string
	userInfo  authjwt.UserInfo
	allowed   bool
}

func (r *fakeRequest) FindHeader(name string) (string, bool) {
	v, ok := r.headers[name]
	return v, ok
}

func (r *fakeRequest) FindQuery(name string) (string, bool) {
	v, ok := r.query[name]
	return v, ok
}

func (r *fakeRequest) SetAuthToken(token string) {
	r.authToken = token
}

func (r *fakeRequest) SetUserInfo(info authjwt.UserInfo) {
	r.userInfo = info
	r.allowed = true
}

// fakeFetcher resolves Get synchronously against a map of canned
// responses keyed by URL, and records how many times each URL was hit.
type fakeFetcher struct {
	responses map[string]fakeResponse
	calls     map[string]int
}

type fakeResponse struct {
	status int
	body   []byte
	err    error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]fakeResponse), calls: make(map[string]int)}
}

func (f *fakeFetcher) Get(ctx context.Context, kind, url string, continuation fetcher.Continuation) {
	f.calls[url]++
	resp, ok := f.responses[url]
	if !ok {
		continuation(0, nil, errUnconfigured)
		return
	}
	continuation(resp.status, resp.body, resp.err)
}

var errUnconfigured = errors.New("fake fetcher: no response configured for url")

type testService struct {
	tokenCache tokencache.Cache
	keyCache   keycache.Cache
	registry   issuer.Registry
	fetcher    *fakeFetcher
	validator  authjwt.TokenValidator
}

func newTestService(entries []gwconfig.IssuerEntry) *testService {
	return &testService{
		tokenCache: tokencache.New(10, nil),
		keyCache:   keycache.New(10, nil),
		registry:   issuer.New(entries),
		fetcher:    newFakeFetcher(),
		validator:  authjwt.NewValidator(),
	}
}

func (s *testService) ServiceName() string                 { return "test-service" }
func (s *testService) TokenCache() tokencache.Cache         { return s.tokenCache }
func (s *testService) KeyCache() keycache.Cache             { return s.keyCache }
func (s *testService) IssuerRegistry() issuer.Registry      { return s.registry }
func (s *testService) Fetcher() fetcher.HttpFetcher         { return s.fetcher }
func (s *testService) Validator() authjwt.TokenValidator    { return s.validator }
func (s *testService) KeySource() KeySource                 { return nil }

func allowAllMethod() policy.MethodPolicy {
	return policy.New(gwconfig.MethodConfig{
		RequiresAuth:   true,
		AllowedIssuers: []string{"https://issuer1.com", "https://issuer2.com"},
		AllowedAudiences: map[string][]string{
			"https://issuer1.com": {"test-service"},
			"https://issuer2.com": {"test-service"},
		},
	})
}

func runCheck(p *Pipeline, req Request, method Method) Outcome {
	var out Outcome
	done := make(chan struct{})
	p.Check(context.Background(), req, method, func(o Outcome) {
		out = o
		close(done)
	})
	<-done
	return out
}

// --- scenarios ----------------------------------------------------------

func TestCheckAllowsValidTokenViaConfiguredIssuer(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer2.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService([]gwconfig.IssuerEntry{
		{Issuer: "https://issuer2.com", KeyURL: "https://issuer2.com/pubkey", Kind: gwconfig.IssuerKindConfigured},
	})
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusOK, body: jwks}

	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, allowAllMethod())

	require.True(t, out.Allowed())
	require.True(t, req.allowed)
	require.Equal(t, "user-1", req.userInfo.ID)
}

func TestCheckDeniesMissingCredentials(t *testing.T) {
	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, MsgMissingCredentials, out.DenyReason())
}

func TestCheckDeniesMalformedAuthorizationHeader(t *testing.T) {
	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Basic garbage"}, query: map[string]string{"access_token": "should-not-be-used"}}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, MsgMissingCredentials, out.DenyReason())
}

func TestCheckDeniesUnparseableToken(t *testing.T) {
	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer not-a-jwt"}}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, MsgMissingCredentials, out.DenyReason())
}

func TestCheckDeniesIssuerNotAllowed(t *testing.T) {
	token, _ := signedToken(t, "https://unknown-issuer.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, MsgIssuerNotAllowed, out.DenyReason())
}

func TestCheckDeniesAudienceNotAllowed(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer2.com", "user-1", []string{"other-service"}, time.Now().Add(time.Hour))

	svc := newTestService([]gwconfig.IssuerEntry{
		{Issuer: "https://issuer2.com", KeyURL: "https://issuer2.com/pubkey", Kind: gwconfig.IssuerKindConfigured},
	})
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusOK, body: jwks}

	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, MsgAudienceNotAllowed, out.DenyReason())
}

func TestCheckDeniesExpiredToken(t *testing.T) {
	token, _ := signedToken(t, "https://issuer2.com", "user-1", []string{"test-service"}, time.Now().Add(-time.Hour))

	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, msgValidatorError("TIME_CONSTRAINT_FAILURE"), out.DenyReason())
}

func TestCheckDiscoversKeysForUnknownIssuer(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer1.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService(nil)
	discoveryURL := issuer.DerivedDiscoveryURL("https://issuer1.com")
	svc.fetcher.responses[discoveryURL] = fakeResponse{status: http.StatusOK, body: []byte(`{"jwks_uri":"https://issuer1.com/jwks"}`)}
	svc.fetcher.responses["https://issuer1.com/jwks"] = fakeResponse{status: http.StatusOK, body: jwks}

	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, allowAllMethod())

	require.True(t, out.Allowed())
	require.Equal(t, 1, svc.fetcher.calls[discoveryURL])
	require.Equal(t, 1, svc.fetcher.calls["https://issuer1.com/jwks"])
}

func TestCheckDiscoveryFailureIsStickyAndDeniesKeyLookup(t *testing.T) {
	token, _ := signedToken(t, "http://openid_fail", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	method := policy.New(gwconfig.MethodConfig{
		RequiresAuth:     true,
		AllowedIssuers:   []string{"http://openid_fail"},
		AllowedAudiences: map[string][]string{"http://openid_fail": {"test-service"}},
	})

	svc := newTestService(nil)
	discoveryURL := issuer.DerivedDiscoveryURL("http://openid_fail")
	svc.fetcher.responses[discoveryURL] = fakeResponse{status: http.StatusServiceUnavailable}

	p := New(svc, nil)

	req1 := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}
	out1 := runCheck(p, req1, method)
	require.False(t, out1.Allowed())
	require.Equal(t, MsgDiscoveryFetchFailed, out1.DenyReason())
	require.Equal(t, 1, svc.fetcher.calls[discoveryURL])

	// Second request for the same issuer must not re-attempt discovery:
	// the negative entry is sticky until an out-of-band Reset.
	req2 := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}
	out2 := runCheck(p, req2, method)
	require.False(t, out2.Allowed())
	require.Equal(t, MsgCannotDetermineKey, out2.DenyReason())
	require.Equal(t, 1, svc.fetcher.calls[discoveryURL])
}

func TestCheckKeyFetchFailureDoesNotCacheNegatively(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer2.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService([]gwconfig.IssuerEntry{
		{Issuer: "https://issuer2.com", KeyURL: "https://issuer2.com/pubkey", Kind: gwconfig.IssuerKindConfigured},
	})
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusInternalServerError}

	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, allowAllMethod())
	require.False(t, out.Allowed())
	require.Equal(t, MsgKeyFetchFailed, out.DenyReason())
	require.Equal(t, 0, svc.keyCache.Len())

	// A retry against a now-healthy endpoint must succeed: the prior
	// failure was never cached.
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusOK, body: jwks}
	req2 := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}
	out2 := runCheck(p, req2, allowAllMethod())
	require.True(t, out2.Allowed())
}

func TestCheckUsesTokenCacheOnSecondRequest(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer2.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService([]gwconfig.IssuerEntry{
		{Issuer: "https://issuer2.com", KeyURL: "https://issuer2.com/pubkey", Kind: gwconfig.IssuerKindConfigured},
	})
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusOK, body: jwks}

	p := New(svc, nil)

	req1 := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}
	out1 := runCheck(p, req1, allowAllMethod())
	require.True(t, out1.Allowed())
	require.Equal(t, 1, svc.fetcher.calls["https://issuer2.com/pubkey"])

	req2 := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}
	out2 := runCheck(p, req2, allowAllMethod())
	require.True(t, out2.Allowed())
	// No further fetch: the second request was served entirely from the
	// token cache.
	require.Equal(t, 1, svc.fetcher.calls["https://issuer2.com/pubkey"])
}

func TestCheckSkipsAuthWhenMethodDoesNotRequireIt(t *testing.T) {
	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{}
	method := policy.New(gwconfig.MethodConfig{RequiresAuth: false})

	out := runCheck(p, req, method)

	require.True(t, out.Allowed())
	require.False(t, req.allowed)
}

func TestCheckAllowsAudienceMatchingServiceNameEvenWhenAllowListOmitsIt(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer2.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService([]gwconfig.IssuerEntry{
		{Issuer: "https://issuer2.com", KeyURL: "https://issuer2.com/pubkey", Kind: gwconfig.IssuerKindConfigured},
	})
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusOK, body: jwks}

	// The method's own allow-list names only a third party, not this
	// service: the token must still be accepted on the service_name
	// shortcut since ServiceName() returns "test-service".
	method := policy.New(gwconfig.MethodConfig{
		RequiresAuth:   true,
		AllowedIssuers: []string{"https://issuer2.com"},
		AllowedAudiences: map[string][]string{
			"https://issuer2.com": {"some-other-service"},
		},
	})

	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer " + token}}

	out := runCheck(p, req, method)

	require.True(t, out.Allowed())
}

func TestCheckRecordsAuthTokenOnRequestBeforeValidation(t *testing.T) {
	svc := newTestService(nil)
	p := New(svc, nil)
	req := &fakeRequest{headers: map[string]string{"Authorization": "Bearer not-a-jwt"}}

	out := runCheck(p, req, allowAllMethod())

	require.False(t, out.Allowed())
	require.Equal(t, "not-a-jwt", req.authToken)
}

func TestCheckFallsBackToAccessTokenQueryParam(t *testing.T) {
	token, jwks := signedToken(t, "https://issuer2.com", "user-1", []string{"test-service"}, time.Now().Add(time.Hour))

	svc := newTestService([]gwconfig.IssuerEntry{
		{Issuer: "https://issuer2.com", KeyURL: "https://issuer2.com/pubkey", Kind: gwconfig.IssuerKindConfigured},
	})
	svc.fetcher.responses["https://issuer2.com/pubkey"] = fakeResponse{status: http.StatusOK, body: jwks}

	p := New(svc, nil)
	req := &fakeRequest{query: map[string]string{"access_token": token}}

	out := runCheck(p, req, allowAllMethod())

	require.True(t, out.Allowed())
}
