// Package jwt issues, verifies and revokes HS256 bearer tokens.
//
// # Token lifecycle
//
// Issued tokens are active until their exp passes or their jti is added to
// the [Blacklist]. [Manager.RotateSigningKey] swaps the secret and bumps the
// token_version claim, so every earlier token fails verification at once
// without being enumerated.
//
// # What this package must NOT do
//
//   - Resolve role inheritance; that is injected as a [PermissionResolver].
//   - Log token strings or secrets.
package jwt
