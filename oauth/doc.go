// Package oauth federates logins through external OAuth2 identity providers.
//
// A [Broker] exchanges an authorization code at the provider's token
// endpoint, reads the provider's userinfo endpoint with the resulting bearer
// token and mints an internal access token for the federated subject. Each
// provider has its own request budget.
//
// # What this package must NOT do
//
//   - Verify provider ID tokens. The userinfo endpoint is the identity source.
//   - Log or audit provider access tokens, refresh tokens or client secrets.
//   - Decide role assignment beyond the caller-supplied roles and scope
//     mappings.
package oauth
