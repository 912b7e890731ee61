// Package protocol implements the wire protocol for signalgrid.
//
// Two message planes share this package:
//
//   - The client plane: JSON-encoded tagged messages exchanged with
//     connected frontends over a persistent WebSocket. The tag is the
//     "type" field; unknown tags are rejected as malformed rather than
//     silently ignored.
//   - The bus plane: msgpack-encoded routing envelopes exchanged between
//     backend processes over the cross-process event bus. A bus envelope
//     carries the signal envelope plus the routing channel so every
//     process can decide locally which of its connections to deliver to.
//
// # Client Wire Format
//
// Client → server:
//
//	{"type":"ping"}
//
// Server → client:
//
//	{"type":"pong"}
//	{"type":"connected","userId":"<id>"}
//	{"type":"signal","signalId":"<id>","payload":<any>,"timestamp":"<ISO-8601>"}
//	{"type":"error","message":"<text>"}
//
// Encoding and decoding switch exhaustively over the message variants;
// adding a variant without handling it in both directions is a compile- or
// test-time failure, not a silent drop.
package protocol
