// Package server implements a single-process, room-based WebSocket message
// relay.
//
// Clients connect to one long-lived endpoint, receive a generated session id,
// and exchange JSON envelopes to join and leave named rooms and to broadcast
// messages to room members. State lives in two lock-protected structures: the
// SessionRegistry (who is connected) and the RoomIndex (who is in which
// room). The Broadcaster fans messages out to a membership snapshot
// concurrently, tolerating individual send failures, and each connection's
// Session loop guarantees registry and room cleanup on any termination path.
package server
