// Package stores provides the cache-backed records shared by the
// authentication flows: the token blacklist and the short-lived token-pair
// cache.
//
// # Design
//
// Records live under fixed key namespaces with TTLs so the cache prunes
// them without a sweeper:
//
//	token_blacklist:{jti}  presence flag, TTL = token remaining lifetime
//	tokens:{user_id}       JSON token pair, TTL ~ 5 minutes
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT verify tokens or make
// authentication decisions; those belong to jwt and internal/flows.
//
// # What this package must NOT do
//
//   - Import seccore or any sibling internal package.
//   - Log token values.
package stores
