// Package chat manages the chat session list, the active session, and its
// transcript.
//
// # State
//
// The controller owns one State value:
//
//	Sessions   ordered as the gateway returns them
//	Active     the open session, nil for a draft
//	Transcript messages of the active session
//	Pending    a send is in flight
//
// # Sending
//
// SendMessage appends the user's message before the gateway confirms it.
// On failure exactly that message is removed again, so a failed send leaves
// the transcript as it was. On success the assistant's reply is appended and
// a draft adopts the session the gateway created. Only one send may be in
// flight.
//
// # Epochs
//
// Selecting a session, starting a draft, deleting the active session, and
// Reset each advance the epoch. A response that arrives for an older epoch,
// or after the auth session changed, is dropped.
//
// # Subscriptions
//
// Subscribe returns a channel of snapshots published after every change.
// Slow subscribers miss snapshots rather than blocking the controller.
package chat
