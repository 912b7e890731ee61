// Package client implements the subscription side of signalgrid: one
// physical WebSocket connection, decoding of inbound signal envelopes, and
// dispatch of typed payloads to registered callbacks.
//
// Dial returns once the server's "connected" confirmation has arrived, so
// a non-nil client is always an authenticated one. Reconnection policy
// belongs to the embedding application — on transport loss the client
// reports Status().Connected == false, fires the OnDisconnect hook, and
// stays closed; dial again for a fresh connection. Envelopes whose emit
// timestamp predates the current connection's handshake are discarded, so
// messages that belonged to a superseded transport never reach callbacks
// registered after a reconnect.
package client
