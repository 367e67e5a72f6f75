// Package protocol holds the text conventions shared by the relay server and
// its clients.
//
// Frames are plain UTF-8 text. Chat lines follow "<name>: <body>" and system
// notices are wrapped as "-- <text> --". Nothing in a frame marks which of the
// two it is; readers apply the conventions below. A display name that itself
// contains ": " is split at its first occurrence and therefore misparsed. This
// ambiguity is part of the wire format and is left as is.
package protocol

import (
	"fmt"
	"strings"
)

const (
	noticePrefix = "-- "
	noticeSuffix = " --"
	chatSep      = ": "
)

// Kind tells how a received frame should be interpreted.
type Kind int

const (
	// KindChat is a relayed user message in "<name>: <body>" form.
	KindChat Kind = iota
	// KindNotice is a server generated "-- ... --" notice.
	KindNotice
	// KindRaw is text that matches neither convention.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindNotice:
		return "notice"
	default:
		return "raw"
	}
}

// Line is a received frame split according to the conventions.
type Line struct {
	Kind Kind
	Name string
	Body string
	Text string
}

// JoinNotice is broadcast once a peer has completed the name handshake.
func JoinNotice(name string) string {
	return Notice(fmt.Sprintf("%s is entering.", name))
}

// LeaveNotice is broadcast to the remaining peers when a session ends.
func LeaveNotice(name string) string {
	return Notice(fmt.Sprintf("%s is exited.", name))
}

// Notice wraps text in the system notice markers.
func Notice(text string) string {
	return noticePrefix + text + noticeSuffix
}

// IsNotice reports whether text carries the system notice markers.
func IsNotice(text string) bool {
	return len(text) >= len(noticePrefix)+len(noticeSuffix) &&
		strings.HasPrefix(text, noticePrefix) &&
		strings.HasSuffix(text, noticeSuffix)
}

// FormatChat builds the body a client sends for a user message.
func FormatChat(name, body string) string {
	return name + chatSep + body
}

// Parse classifies a frame received from the server.
func Parse(text string) Line {
	if IsNotice(text) {
		inner := strings.TrimSuffix(strings.TrimPrefix(text, noticePrefix), noticeSuffix)
		return Line{Kind: KindNotice, Body: inner, Text: text}
	}
	name, body, ok := strings.Cut(text, chatSep)
	if !ok {
		return Line{Kind: KindRaw, Body: text, Text: text}
	}
	return Line{Kind: KindChat, Name: name, Body: body, Text: text}
}
