// Package jwt implements the TokenValidator capability: parsing a bearer
// token into Claims and verifying its signature against a key-set blob,
// backed by github.com/lestrrat-go/jwx/v2.
package jwt

import (
	"time"
)

// Audience is a deduplicated, order-insignificant set of audience strings.
type Audience []string

// Contains reports whether aud is present in the audience set.
func (a Audience) Contains(aud string) bool {
	for _, v := range a {
		if v == aud {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of auds is present in the audience set.
func (a Audience) ContainsAny(auds ...string) bool {
	for _, aud := range auds {
		if a.Contains(aud) {
			return true
		}
	}
	return false
}

func canonicalAudience(in []string) Audience {
	seen := make(map[string]struct{}, len(in))
	out := make(Audience, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Claims is the parsed payload of a bearer token, per the data model:
// issuer, subject, audiences, expiry, and an optional key id hint.
type Claims struct {
	Issuer    string
	Subject   string
	Audiences Audience
	Expiry    time.Time
	KeyID     string
}

// UserInfo is the projection of Claims handed to downstream request
// handling on a successful Allow outcome.
type UserInfo struct {
	ID        string
	Issuer    string
	Audiences Audience
}

// ToUserInfo projects Claims into the UserInfo downstream handlers see.
func (c *Claims) ToUserInfo() UserInfo {
	return UserInfo{ID: c.Subject, Issuer: c.Issuer, Audiences: c.Audiences}
}
