package authpipeline

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	accessTokenQueryKey = "access_token"
)

// extractToken implements S0_Start's credential extraction rule: an
// Authorization header, if present, must carry a non-empty Bearer token
// or the request is rejected outright (no query fallback); only the
// absence of the header falls back to the access_token query parameter.
func extractToken(req Request) (string, bool) {
	if h, present := req.FindHeader(authorizationHeader); present {
		if strings.HasPrefix(h, bearerPrefix) && len(h) > len(bearerPrefix) {
			return h[len(bearerPrefix):], true
		}
		return "", false
	}
	if q, present := req.FindQuery(accessTokenQueryKey); present && q != "" {
		return q, true
	}
	return "", false
}

type discoveryDocument struct {
	JwksURI string `json:"jwks_uri"`
}

var errNoJwksURI = errors.New("discovery document has no jwks_uri")

// parseDiscoveryDocument extracts jwks_uri from an OpenID discovery body.
func parseDiscoveryDocument(body []byte) (string, error) {
	var doc discoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	if doc.JwksURI == "" {
		return "", errNoJwksURI
	}
	return doc.JwksURI, nil
}
