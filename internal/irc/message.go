package irc

import (
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// Message is the structured wire message produced by the codec.
type Message = ircmsg.Message

// Numeric replies the engine acts on.
const (
	rplWelcome     = "001"
	rplEndOfWho    = "315"
	rplEndOfWhois  = "318"
	rplNamReply    = "353"
	rplEndOfNames  = "366"
	rplEndOfWhowas = "369"

	errNoSuchNick      = "401"
	errNoSuchServer    = "402"
	errWasNoSuchNick   = "406"
	errNoNicknameGiven = "431"
)

// rerouteTerminals are the replies that end a WHO/WHOIS/WHOWAS response,
// closing an active reroute once handled.
var rerouteTerminals = map[string]bool{
	rplEndOfWho:        true,
	rplEndOfWhois:      true,
	rplEndOfWhowas:     true,
	errNoSuchNick:      true,
	errNoSuchServer:    true,
	errWasNoSuchNick:   true,
	errNoNicknameGiven: true,
}

// knownCommands are the named commands the engine recognizes. Anything
// outside this set (or any bare numeric) is eligible for rerouting while a
// reroute target is active.
var knownCommands = map[string]bool{
	"AUTHENTICATE": true,
	"AWAY":         true,
	"BATCH":        true,
	"CAP":          true,
	"ERROR":        true,
	"INVITE":       true,
	"JOIN":         true,
	"KICK":         true,
	"MODE":         true,
	"NICK":         true,
	"NOTICE":       true,
	"PART":         true,
	"PING":         true,
	"PONG":         true,
	"PRIVMSG":      true,
	"QUIT":         true,
	"TOPIC":        true,
	"WALLOPS":      true,
}

func isNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for _, r := range command {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func rerouteEligible(command string) bool {
	return isNumeric(command) || !knownCommands[command]
}

func isChannelName(target string) bool {
	return target != "" && strings.ContainsRune("#&+!", rune(target[0]))
}
