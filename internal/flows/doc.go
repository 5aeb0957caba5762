// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunValidate, RunLogout) accepts a
// typed dependency struct and returns results without side-effects beyond
// those dependencies. This keeps the Engine thin and lets every branch be
// tested with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate the credential store, token manager, limiters,
// token cache and audit emitter. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import seccore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs, each
//     call bounded by the flow's timeout.
//   - Put passwords or raw emails into audit events.
package flows
