// Package auth owns account identity for the service.
//
// It decides how provider assertions map onto accounts, establishes
// browser sessions, and keeps the user directory consistent so every
// other part of the system can rely on stable user IDs.
//
// Subpackages:
//   - app: HTTP server wiring and lifecycle
//   - identity: the assertion-to-account resolution logic
//   - session: session establishment and teardown
//   - providers: external identity provider configuration
//   - profile: provider profile normalization
//   - credentials: password hashing for local login
//   - account: client-facing account projections
//   - verify: email verification tokens
//   - events: sign-in and sign-out notifications
//   - storage: persistence interfaces and the SQLite implementation
package auth
