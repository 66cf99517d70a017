package fetcher

import (
	"errors"
	"net/url"
)

// ErrRateLimited indicates a dispatch was refused because the per-host
// rate limiter's budget was exhausted, without attempting the network
// call. It surfaces through the continuation exactly like any other
// fetch failure.
var ErrRateLimited = errors.New("fetch rate limit exceeded for host")

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
