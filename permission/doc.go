// Package permission resolves role-based permissions for seccore tokens.
//
// # Model
//
// Roles and permissions are closed sets ([Role], [Permission]). Each role
// inherits the roles listed in [DefaultInheritance] and holds the permissions
// in [DefaultGrants]; its effective set is the union over the transitive
// closure, computed once by [NewHierarchy] and stored as a [Mask64] whose bit
// positions come from a frozen [Registry].
//
// # Caching
//
// [RBAC] memoizes per-role permission lists and short-lived
// (token, permission) decisions in process. Decisions never outlive the
// token's exp.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import seccore, jwt, or flows. Token verification arrives through [RoleSource].
//   - Raise errors out of [RBAC.VerifyPermission]; it denies instead.
package permission
