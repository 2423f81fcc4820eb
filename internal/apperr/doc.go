// Package apperr classifies the errors the client core can surface.
//
// Four kinds reach callers:
//
//   - KindValidation: a local field check failed; nothing was sent.
//   - KindAuth: the account gateway rejected the request with a known status.
//   - KindNetwork: the transport failed or the gateway returned a 5xx.
//   - KindMerge: an analytics identity call failed. Logged, never surfaced.
//
// Each error carries a short machine code and maps to one user-facing message
// through UserMessage.
package apperr
