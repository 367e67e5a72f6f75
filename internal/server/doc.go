// Package server implements the relay's WebSocket listener, session lifecycle
// and broadcast registry.
//
// Every connection is upgraded and becomes a Session. Its first text frame is
// the display name; after that the session's Handle joins the Registry and each
// text frame it reads is delivered, unchanged, to every registered handle,
// its own included. Join and leave notices are generated here with the
// protocol package.
package server
