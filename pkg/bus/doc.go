// Package bus provides the cross-process publish/subscribe transport that
// fans signal emissions out to every backend process.
//
// The signal subsystem publishes each emission once; every process
// subscribes to the same topic and, on receipt, delivers only to the
// connections it physically holds. This keeps the deployment horizontally
// scalable without a central directory of which process holds which user's
// connections — the trade is one broker hop per emission instead of shared
// state.
//
// Two implementations are provided:
//
//   - Memory: in-process fanout for single-process deployments and tests.
//   - ZMQ: a ZeroMQ adapter where every process connects a PUB socket to a
//     relay's XSUB side and a SUB socket to its XPUB side. The relay itself
//     is zmq.Proxy over the two bound sockets (see Relay) and carries no
//     state.
//
// Delivery is best-effort: messages published while a subscriber is absent
// or still joining are dropped, and nothing is retained beyond process
// uptime. Ordering across processes is not guaranteed.
package bus
