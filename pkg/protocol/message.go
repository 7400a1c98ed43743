// Package protocol implements the line-oriented IRC dialect spoken by Twitch chat.
package protocol

import "strings"

// Commands the client reacts to.
const (
	CommandPing    = "PING"
	CommandPrivmsg = "PRIVMSG"
	CommandNotice  = "NOTICE"
)

const (
	tagsMarker     = '@'
	sourceMarker   = ':'
	trailingMarker = ':'
	nickSeparator  = "!"
)

// Message is a single parsed protocol line.
//
// Source and Parameters are optional; HasSource and HasParameters report
// whether the line carried them.
type Message struct {
	Command       string
	Source        string
	HasSource     bool
	Parameters    string
	HasParameters bool
}

// Parse splits a raw line into its command, source and trailing parameters.
// Tags are skipped and the middle parameters (e.g. the channel) are dropped.
//
// The second return value is false when the line has no usable command.
// Such lines carry nothing the client acts on and are meant to be ignored.
func Parse(line string) (Message, bool) {
	idx := 0

	if idx < len(line) && line[idx] == tagsMarker {
		end := strings.IndexByte(line, ' ')
		if end < 0 {
			return Message{}, false
		}
		idx = end + 1
	}

	var rawSource string
	if idx < len(line) && line[idx] == sourceMarker {
		idx++
		end := strings.IndexByte(line[idx:], ' ')
		if end < 0 {
			return Message{}, false
		}
		rawSource = line[idx : idx+end]
		idx += end + 1
	}

	rest := line[idx:]
	segment := rest
	var msg Message
	if end := strings.IndexByte(rest, trailingMarker); end >= 0 {
		segment = rest[:end]
		msg.Parameters = strings.TrimSpace(rest[end+1:])
		msg.HasParameters = true
	}

	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return Message{}, false
	}
	msg.Command = fields[0]
	msg.Source, msg.HasSource = parseSource(rawSource)

	return msg, true
}

// parseSource reduces a nick!user@host token to the nick.
func parseSource(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	parts := strings.Split(raw, nickSeparator)
	if len(parts) != 2 {
		return "", false
	}
	return parts[0], true
}
