// Package keysource resolves a vault:// issuer key reference directly
// against HashiCorp Vault's KV v2 secrets engine, bypassing the HTTP
// fetch path entirely. It implements the authpipeline.KeySource contract
// consumed during S5_KeyLookup for issuers configured with IssuerKindVault.
package keysource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/haloedge/authcore/internal/observability"
)

const refPrefix = "vault://"

// Errors returned by Resolve. These never reach a caller verbatim: per
// the pipeline's message table, any failure here surfaces as the fixed
// "Unable to fetch verification key" Deny reason.
var (
	ErrInvalidRef    = errors.New("vault key reference is malformed")
	ErrSecretNotFound = errors.New("vault secret not found")
	ErrFieldMissing  = errors.New("vault secret has no key-set field")
)

// Config controls the underlying Vault client.
type Config struct {
	Address string
	Token   string
	// Namespace is the Vault Enterprise namespace, if any.
	Namespace string
	// Field is the key within the KV v2 secret's data map holding the
	// JWKS blob. Defaults to "jwks".
	Field string
}

// DefaultConfig returns Config with Field defaulted.
func DefaultConfig() Config {
	return Config{Field: "jwks"}
}

// Source resolves vault:// references to key-set blobs.
type Source struct {
	client *vaultapi.Client
	field  string
	logger observability.Logger
}

// New builds a Source from cfg.
func New(cfg Config, logger observability.Logger) (*Source, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	field := cfg.Field
	if field == "" {
		field = "jwks"
	}

	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.Address

	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("keysource: building vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &Source{client: client, field: field, logger: logger}, nil
}

// parseRef splits "vault://<mount>/<path>" into its mount and secret path.
func parseRef(ref string) (mount, path string, err error) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", "", ErrInvalidRef
	}
	rest := strings.TrimPrefix(ref, refPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidRef
	}
	return parts[0], parts[1], nil
}

// Resolve reads ref's KV v2 secret and returns the blob stored under the
// configured Field, the issuer's JWKS document.
func (s *Source) Resolve(ctx context.Context, ref string) ([]byte, error) {
	mount, path, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	dataPath := fmt.Sprintf("%s/data/%s", mount, path)
	secret, err := s.client.Logical().ReadWithContext(ctx, dataPath)
	if err != nil {
		s.logger.Warn("vault read failed", observability.String("path", dataPath), observability.Error(err))
		return nil, fmt.Errorf("keysource: reading %s: %w", dataPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, ErrSecretNotFound
	}

	raw, ok := data[s.field]
	if !ok {
		return nil, ErrFieldMissing
	}

	blob, ok := raw.(string)
	if !ok || blob == "" {
		return nil, ErrFieldMissing
	}

	return []byte(blob), nil
}
