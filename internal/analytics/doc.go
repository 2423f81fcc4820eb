// Package analytics is the client side of the analytics identity backend.
//
// Client implements identify, alias, register, capture, reset and
// currentDistinctId. It keeps the current distinct ID and super properties in
// the local store and hands every outgoing event to a Sender.
//
// Senders:
//
//   - HTTPSender posts events to a capture endpoint.
//   - Dispatcher queues events and sends them from a single worker so callers
//     never wait on the network. A full queue drops the event.
//   - NopSender discards events when analytics is disabled.
//
// Delivery is best-effort. Send failures are logged and discarded.
package analytics
