package authpipeline

import (
	"errors"

	"github.com/haloedge/authcore/internal/jwt"
)

// The stable, observable Deny message strings. Their wording must never
// change independent of internal refactors — callers and tests match on
// these exact strings.
const (
	MsgMissingCredentials   = "JWT validation failed: Missing or invalid credentials"
	MsgIssuerNotAllowed     = "JWT validation failed: Issuer not allowed"
	MsgAudienceNotAllowed   = "JWT validation failed: Audience not allowed"
	MsgCannotDetermineKey   = "JWT validation failed: Cannot determine the URI of the key"
	MsgDiscoveryFetchFailed = "JWT validation failed: Unable to fetch URI of the key via OpenID discovery"
	MsgKeyFetchFailed       = "JWT validation failed: Unable to fetch verification key"
	msgPrefix               = "JWT validation failed: "
)

// msgValidatorError formats the generic "<parse/verify error text>" entry
// of the message table.
func msgValidatorError(detail string) string {
	return msgPrefix + detail
}

// denyForParseError maps a TokenValidator.Parse failure to the exact
// Deny message. An envelope the validator could not even construct
// (malformed, empty) is equivalent to a missing credential; anything
// that parsed but failed a semantic check (expired, missing claim)
// surfaces its specific reason text.
func denyForParseError(err error) Outcome {
	var pe *jwt.ParseError
	if errors.As(err, &pe) {
		if errors.Is(pe, jwt.ErrTokenMalformed) || errors.Is(pe, jwt.ErrEmptyToken) {
			return Deny(MsgMissingCredentials)
		}
		return Deny(msgValidatorError(pe.Message))
	}
	return Deny(MsgMissingCredentials)
}

// denyForVerifyError maps a TokenValidator.Verify failure to its Deny
// message, per the generic "<parse/verify error text>" table entry.
func denyForVerifyError(err error) Outcome {
	var ve *jwt.VerifyError
	if errors.As(err, &ve) {
		return Deny(msgValidatorError(ve.Message))
	}
	return Deny(msgValidatorError(err.Error()))
}
