package jwt

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator is C1: it parses a raw token string into Claims and
// verifies its signature against a key-set blob. Implementations must
// reject time-constraint failures (exp <= now) during Parse, before any
// key lookup or network I/O; Verify must not re-check time constraints.
type TokenValidator interface {
	// Parse extracts Claims from token without verifying its signature.
	// It fails for syntactically invalid tokens and for tokens whose
	// expiry has already passed.
	Parse(token string) (*Claims, error)

	// Verify checks token's signature against keySet (an opaque blob
	// previously obtained from an issuer's key-set document).
	Verify(token string, keySet []byte) error
}

// jwxValidator implements TokenValidator using lestrrat-go/jwx/v2.
type jwxValidator struct{}

// NewValidator returns the concrete jwx-backed TokenValidator.
func NewValidator() TokenValidator {
	return &jwxValidator{}
}

func (v *jwxValidator) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, NewParseError("empty token", ErrEmptyToken)
	}

	raw := []byte(token)

	// Extract the key id hint from the JWS header, if any. A malformed
	// envelope (wrong number of segments, invalid base64) fails here,
	// before any claim is trusted.
	msg, err := jws.Parse(raw)
	if err != nil {
		return nil, NewParseError("malformed token envelope", ErrTokenMalformed)
	}
	var keyID string
	if sigs := msg.Signatures(); len(sigs) > 0 {
		keyID = sigs[0].ProtectedHeaders().KeyID()
	}

	// Parse claims without verifying the signature (no key available
	// yet) and without jwx's own time validation, so the expiry check
	// below is the single, explicit source of truth for this rule.
	tok, err := jwt.Parse(raw, jwt.WithValidate(false), jwt.WithVerify(false))
	if err != nil {
		return nil, NewParseError("malformed claims", ErrTokenMalformed)
	}

	issuer := tok.Issuer()
	subject := tok.Subject()
	audiences := canonicalAudience(tok.Audience())
	expiry := tok.Expiration()

	if issuer == "" || subject == "" || len(audiences) == 0 || expiry.IsZero() {
		return nil, NewParseError("missing required claim", ErrClaimMissing)
	}

	if !expiry.After(time.Now()) {
		return nil, NewParseError("TIME_CONSTRAINT_FAILURE", ErrTokenExpired)
	}

	return &Claims{
		Issuer:    issuer,
		Subject:   subject,
		Audiences: audiences,
		Expiry:    expiry,
		KeyID:     keyID,
	}, nil
}

func (v *jwxValidator) Verify(token string, keySet []byte) error {
	if len(keySet) == 0 {
		return NewVerifyError("empty key set", ErrInvalidKeySet)
	}

	set, err := jwk.Parse(keySet)
	if err != nil {
		return NewVerifyError("malformed key set", ErrInvalidKeySet)
	}

	// jwt.WithValidate(false): time constraints were already enforced in
	// Parse; this call's only job is signature verification against set.
	if _, err := jwt.Parse([]byte(token), jwt.WithKeySet(set), jwt.WithValidate(false)); err != nil {
		return NewVerifyError("signature verification failed", ErrSignatureInvalid)
	}
	return nil
}

var _ TokenValidator = (*jwxValidator)(nil)
