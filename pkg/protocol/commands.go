package protocol

import "strings"

const oauthPrefix = "oauth:"

// PassLine returns the credential line of the handshake.
func PassLine(token string) string {
	if !strings.HasPrefix(token, oauthPrefix) {
		token = oauthPrefix + token
	}
	return "PASS " + token
}

// NickLine returns the identity line of the handshake.
func NickLine(nick string) string {
	return "NICK " + nick
}

// JoinLine returns the channel join line of the handshake.
func JoinLine(channel string) string {
	return "JOIN " + ChannelName(channel)
}

// PongLine answers a PING, echoing its payload when there is one.
func PongLine(payload string, hasPayload bool) string {
	if !hasPayload {
		return "PONG"
	}
	return "PONG " + payload
}

// PrivmsgLine returns a chat message addressed to channel.
func PrivmsgLine(channel, text string) string {
	return "PRIVMSG " + ChannelName(channel) + " :" + text
}

// ChannelName normalizes a channel to its #-prefixed form.
func ChannelName(channel string) string {
	return "#" + strings.TrimPrefix(channel, "#")
}
