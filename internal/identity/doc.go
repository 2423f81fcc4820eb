// Package identity models the three identity lineages a person can have
// before and after signing in: an anonymous web visitor key, an anonymous SMS
// sender key derived from a phone number, and the authenticated user ID.
//
// Identities are never deleted. Once a person authenticates, earlier
// anonymous keys are superseded by AliasLinks pointing at the user ID.
package identity
