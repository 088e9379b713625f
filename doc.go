// Package auth provides account registration, password login, signed session
// tokens and email based password recovery for the patient and researcher
// portals.
//
// Sessions:
//   - Auther issues HS256 tokens carrying the user id, user type and a unique
//     token id. Resolve verifies signature, issuer, audience and expiry, then
//     checks the revocation deny-list so Logout takes effect immediately.
//   - ProtectedRoute and RequireUserType gate fiber handlers on the resolved
//     Session.
//
// Password recovery:
//   - ForgotPassword answers the same way whether or not the email is known.
//     Known emails get a fresh numeric code that replaces any earlier one.
//   - ResetPassword consumes the code and replaces the password hash in one
//     transaction. A code works once, and only before it expires.
//
// Storage:
//   - RepositoryManager groups the credential, reset code and revocation
//     stores. NewRepositoryManager backs them with bun on SQLite or Postgres;
//     the memstore package keeps them in memory.
package auth
