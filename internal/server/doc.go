// Package server implements the WebSocket gateway of the forum backend.
//
// Every connection is authenticated before the upgrade and then driven by a
// Session: client envelopes are dispatched to the module registry, and
// envelopes published on the topics the session has joined are filtered per
// recipient and written back. The implementation is organized into
// specialized files for configuration, origin checks, rate limiting, the hub,
// sessions, routing and HTTP handlers.
package server
