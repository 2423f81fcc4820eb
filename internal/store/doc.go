// Package store provides local persistence for the lamp client using SQLite.
//
// # Tables
//
//   - identities: the kind tag of every key this client minted or observed,
//     so alias guards never have to infer kind from key shape
//   - alias_links: the ledger of alias calls already emitted, unique per
//     unordered key pair
//   - cookies: the account gateway's credential cookies, persisted between runs
//   - client_state: small key/value settings such as the current analytics
//     distinct ID
//
// SQLiteStore implements every interface in a single struct. Consumers take
// the narrow interface they need (IdentityStore, AliasStore, CookieStore,
// StateStore).
package store
