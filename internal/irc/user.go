package irc

import (
	"sort"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// AccessLevel is a channel-scoped membership flag set. The same nickname can
// hold different levels in different channels, so the level lives on the
// (channel, user) pair, never on a shared user value.
type AccessLevel uint8

const (
	Voice AccessLevel = 1 << iota
	HalfOp
	Operator
	Admin
	Owner
)

// Symbol returns the NAMES prefix for the highest held level, or "".
func (a AccessLevel) Symbol() string {
	switch {
	case a&Owner != 0:
		return "~"
	case a&Admin != 0:
		return "&"
	case a&Operator != 0:
		return "@"
	case a&HalfOp != 0:
		return "%"
	case a&Voice != 0:
		return "+"
	}
	return ""
}

func (a AccessLevel) rank() int {
	for i := 4; i >= 0; i-- {
		if a&(1<<uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

func accessFromPrefix(r rune) (AccessLevel, bool) {
	switch r {
	case '~':
		return Owner, true
	case '&':
		return Admin, true
	case '@':
		return Operator, true
	case '%':
		return HalfOp, true
	case '+':
		return Voice, true
	}
	return 0, false
}

func accessFromMode(r rune) (AccessLevel, bool) {
	switch r {
	case 'q':
		return Owner, true
	case 'a':
		return Admin, true
	case 'o':
		return Operator, true
	case 'h':
		return HalfOp, true
	case 'v':
		return Voice, true
	}
	return 0, false
}

// User is one channel member or message sender.
type User struct {
	Nick     string
	Username string
	Hostname string
	Access   AccessLevel
}

func (u User) String() string {
	return u.Nick
}

// userFromSource builds a User from a message prefix. Server-origin prefixes
// (no nick!user@host shape) yield false.
func userFromSource(source string) (User, bool) {
	if source == "" {
		return User{}, false
	}
	nuh, err := ircmsg.ParseNUH(source)
	if err != nil || nuh.Name == "" {
		return User{}, false
	}
	if nuh.User == "" && nuh.Host == "" && strings.ContainsRune(nuh.Name, '.') {
		// Bare server name, not a user.
		return User{}, false
	}
	return User{Nick: nuh.Name, Username: nuh.User, Hostname: nuh.Host}, true
}

// userFromNamesEntry parses one entry of an RPL_NAMREPLY nick list,
// stripping any leading status prefixes into access flags.
func userFromNamesEntry(entry string) (User, bool) {
	var access AccessLevel
	for len(entry) > 0 {
		lvl, ok := accessFromPrefix(rune(entry[0]))
		if !ok {
			break
		}
		access |= lvl
		entry = entry[1:]
	}
	if entry == "" {
		return User{}, false
	}
	return User{Nick: entry, Access: access}, true
}

// foldNick casefolds a nickname for identity comparison using the rfc1459
// mapping ([]\^ pair with {}|~).
func foldNick(nick string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '[':
			return '{'
		case r == ']':
			return '}'
		case r == '\\':
			return '|'
		case r == '^':
			return '~'
		}
		return r
	}, nick)
}

// sortUsers orders a member snapshot: highest access first, then nickname.
func sortUsers(users []User) {
	sort.Slice(users, func(i, j int) bool {
		ri, rj := users[i].Access.rank(), users[j].Access.rank()
		if ri != rj {
			return ri > rj
		}
		return foldNick(users[i].Nick) < foldNick(users[j].Nick)
	})
}
