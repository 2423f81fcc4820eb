// Package flow drives the sign-in, registration, and sign-out lifecycle.
//
// Every successful authentication transition performs, in order:
//
//  1. mark the session as signed in locally,
//  2. fetch the user record, creating it if the gateway has none,
//  3. run the identity merge (failures are swallowed),
//  4. route the fresh record to a destination.
//
// A gateway failure in step 2 aborts the transition and the session falls
// back to signed out. Nothing here retries on its own.
package flow
