// Package session implements the three authentication slots used by the
// login flow:
//
//   - primary: the signed-in user
//   - external: the result of a federated provider handshake
//   - partial: a user who still has to complete an out-of-band step
//
// Each slot is a separate signed cookie that can be written, read and
// cleared on its own. Slots are request scoped; obtain them for a request
// through Manager.ForRequest.
//
// The external slot also drives provider handshakes. Challenge asks a
// Challenger for the provider's authorization URL and remembers a nonce and
// the caller's opaque state in a short-lived challenge cookie. When the
// provider returns, the handshake handler verifies the nonce and calls
// Complete with whatever identity the provider produced; the opaque state
// is echoed back through Result.
package session
