// Package latch provides one-shot guards: Acquire returns true for a key
// exactly once within the latch's TTL, no matter how many times or from how
// many goroutines it is called.
//
// Memory keeps keys in a bounded in-process TTL cache. Redis uses SET NX so
// that several client processes sharing a Redis instance agree on who won.
package latch
