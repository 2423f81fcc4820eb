// Package merge links pre-authentication identities to a durable user in the
// analytics backend.
//
// Once per authentication transition, OnAuthenticated:
//
//  1. reads the current distinct ID (the lineage active before sign-in),
//  2. identifies the user and registers super properties,
//  3. aliases the earlier key to the user if it is an anonymous web key,
//  4. aliases the phone-derived SMS key if the record carries a phone number.
//
// Each alias is written to the local ledger before it is sent, and a pair
// already in the ledger is never sent again. Every backend failure is logged
// and swallowed; nothing here blocks navigation.
package merge
