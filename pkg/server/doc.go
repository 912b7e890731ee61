// Package server implements the backend half of signalgrid's realtime
// signal delivery: the per-process connection registry, the WebSocket
// session protocol handler, the emit facade, and the HTTP server that ties
// them together.
//
// # Architecture
//
// Application code emits through Service (Broadcast, SendToUser,
// SendToUsers). An emission is validated against the signal registry,
// wrapped in an envelope, and published once to the cross-process event
// bus. Every backend process subscribes to the same topic; on receipt each
// process consults only its own connection registry and pushes the
// envelope to the connections it physically holds. A user with tabs open
// against three processes gets three deliveries without any process
// knowing about the others.
//
// # Connection lifecycle
//
// The HTTP upgrade request is authenticated by the injected AuthFunc
// before any registry entry exists; failure ends the request with 401.
// After the upgrade the connection enqueues its "connected" confirmation,
// registers itself, and runs one read goroutine and one write goroutine
// until closed. Inbound pings get pongs; malformed inbound messages get an
// error envelope and the connection stays open. Liveness is a rolling read
// deadline re-armed by any traffic; a connection that stays silent past
// the window is closed and removed. All sends to one connection flow
// through a single bounded queue drained by the write goroutine — a full
// queue marks a slow or dead consumer and closes the connection rather
// than blocking the emitter.
//
// Delivery is fire-and-forget: at most once per connection, no
// acknowledgment, and no delivery-path error ever reaches the emitting
// caller.
package server
