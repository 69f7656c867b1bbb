// Package session keeps a campus marketplace client's authentication state
// coherent: who is signed in, whether their application profile exists, and
// what each route should do about it.
//
// Session snapshot:
//   - Manager folds provider identity events and profile fetches into a
//     single Snapshot (identity, profile, loading). Overlapping fetches are
//     resolved last notification wins, so a stale response can never
//     overwrite a newer identity's data.
//
// Route guards:
//   - PublicOnly, RequiresAuth, and RequiresAuthNoProfile are pure functions
//     from Snapshot to a routing Decision. They never render protected
//     content while the snapshot is still loading.
//
// Onboarding:
//   - Flow is an explicit state machine covering signup, email verification
//     by one-time code, and profile setup. Backend failures keep the current
//     state; there is no implicit retry. ResetFlow mirrors the same shape
//     for forgotten-password recovery.
//
// Errors carry stable text codes (for example profile_not_found) so callers
// branch on meaning rather than sniffing transport status codes.
package session
