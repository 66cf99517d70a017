// Package authpipeline implements C7: the per-request authentication
// decision pipeline. A single Check call walks the token-cache lookup,
// parse, policy, key-lookup, discovery, key-fetch, and verify stages in
// sequence, suspending at most twice (discovery fetch, key fetch) before
// invoking its completion exactly once with an Allow or Deny outcome.
package authpipeline
