// Package issuer implements C5: the IssuerRegistry mapping an issuer to
// either a direct key-set URL or a discovery URL, and recording
// discovery outcomes.
package issuer

import (
	"sync"

	"github.com/haloedge/authcore/internal/gwconfig"
)

// Source identifies how a key URL was determined.
type Source string

// Key URL sources.
const (
	// Configured means the key URL was set in configuration; no
	// discovery round-trip may occur.
	Configured Source = "configured"
	// Discovered means the key URL was learned (or failed to be
	// learned) via OpenID discovery.
	Discovered Source = "discovered"
	// Unknown means no entry exists yet; a discovery URL is derivable
	// from the issuer.
	Unknown Source = "unknown"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

// DerivedDiscoveryURL returns the conventional discovery URL for issuer.
func DerivedDiscoveryURL(issuerName string) string {
	return issuerName + wellKnownSuffix
}

type config struct {
	keyURL string
	source Source
	// vaultRef carries the vault:// reference, if this issuer's keys
	// resolve via a KeySource rather than HTTP.
	vaultRef string
}

// Registry is C5's operation surface.
type Registry interface {
	// ResolveKeyURL returns the URL to fetch keys from (or discover
	// from), and its source. If issuer is unregistered, returns the
	// derived discovery URL with source Unknown.
	ResolveKeyURL(issuerName string) (url string, source Source)

	// RecordDiscovered writes a Discovered entry; an empty url records
	// a negative (sticky) discovery failure.
	RecordDiscovered(issuerName, url string)

	// Reset clears any Discovered entry for issuerName back to Unknown,
	// the out-of-band reconfiguration event named in the cache design.
	Reset(issuerName string)

	// VaultRef returns the vault:// reference configured for issuerName,
	// if its entry's Kind is vault.
	VaultRef(issuerName string) (string, bool)
}

type registry struct {
	mu      sync.RWMutex
	entries map[string]config
}

// New builds a Registry seeded from cfg.
func New(entries []gwconfig.IssuerEntry) Registry {
	r := &registry{entries: make(map[string]config, len(entries))}
	for _, e := range entries {
		switch e.Kind {
		case gwconfig.IssuerKindConfigured:
			r.entries[e.Issuer] = config{keyURL: e.KeyURL, source: Configured}
		case gwconfig.IssuerKindVault:
			r.entries[e.Issuer] = config{source: Configured, vaultRef: e.KeyURL}
		case gwconfig.IssuerKindDiscovered:
			// A Discovered seed with a key URL pre-warms the registry
			// as if a prior discovery had already run. Without one, the
			// issuer gets no entry and resolves as Unknown, so its key
			// URL is learned through discovery.
			if e.KeyURL != "" {
				r.entries[e.Issuer] = config{keyURL: e.KeyURL, source: Discovered}
			}
		default:
			// No entry: resolves as Unknown until discovered.
		}
	}
	return r
}

func (r *registry) ResolveKeyURL(issuerName string) (string, Source) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.entries[issuerName]; ok {
		return c.keyURL, c.source
	}
	return DerivedDiscoveryURL(issuerName), Unknown
}

func (r *registry) RecordDiscovered(issuerName, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[issuerName] = config{keyURL: url, source: Discovered}
}

func (r *registry) Reset(issuerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.entries[issuerName]; ok && c.source == Discovered {
		delete(r.entries, issuerName)
	}
}

func (r *registry) VaultRef(issuerName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[issuerName]
	if !ok || c.vaultRef == "" {
		return "", false
	}
	return c.vaultRef, true
}

var _ Registry = (*registry)(nil)
