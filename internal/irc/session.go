package irc

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quillirc/quill/internal/observability"
)

// channelMembers is one channel's authoritative member set, keyed by folded
// nickname. Access levels live on the stored User values, so they are scoped
// to this channel only.
type channelMembers struct {
	name  string
	users map[string]User
}

func newChannelMembers(name string) *channelMembers {
	return &channelMembers{name: name, users: make(map[string]User)}
}

// batchState is one open BATCH scope: the context it inherited (if any) and
// the events accumulated for emission when it closes.
type batchState struct {
	ctx    *Context
	events []Event
}

// Session is the per-server protocol state machine. Receive, Send, and Sync
// run on a single owner goroutine; the protocol state below needs no locking.
// Nickname, Channels, and ChannelUsers may be called from other goroutines
// (the status endpoint reads them), so the nickname and the flattened
// snapshot are the one piece of state behind a lock.
type Session struct {
	server Server
	conn   *Conn

	chanmap map[string]*channelMembers

	labels  map[string]Context
	batches map[string]*batchState
	reroute *Buffer

	supportsLabels bool
	labelGen       *labelGenerator

	// mu guards nick and the flattened snapshot. The snapshot slices are
	// never mutated after the swap in Sync, only replaced wholesale.
	mu             sync.RWMutex
	nick           string
	cachedChannels []string
	cachedUsers    map[string][]User
}

// NewSession creates session state for a freshly connected server. conn may
// be nil, in which case Send performs bookkeeping but writes nothing.
func NewSession(server Server, conn *Conn, nick string) *Session {
	return &Session{
		server:      server,
		conn:        conn,
		nick:        nick,
		chanmap:     make(map[string]*channelMembers),
		labels:      make(map[string]Context),
		batches:     make(map[string]*batchState),
		labelGen:    newLabelGenerator(),
		cachedUsers: make(map[string][]User),
	}
}

// Nickname returns the currently resolved nickname.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

func (s *Session) setNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.mu.Unlock()
}

// Channels returns the cached sorted channel list as of the last Sync.
func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cachedChannels
}

// ChannelUsers returns the cached sorted member list as of the last Sync.
func (s *Session) ChannelUsers(channel string) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cachedUsers[foldNick(channel)]
}

// Sync recomputes the flattened view from the membership map. Callers run it
// once after a batch of inbound messages, not per message: membership
// mutation is cheap, the full resort is not.
func (s *Session) Sync() {
	channels := make([]string, 0, len(s.chanmap))
	users := make(map[string][]User, len(s.chanmap))
	for key, ch := range s.chanmap {
		channels = append(channels, ch.name)
		members := make([]User, 0, len(ch.users))
		for _, u := range ch.users {
			members = append(members, u)
		}
		sortUsers(members)
		users[key] = members
	}
	sort.Strings(channels)

	s.mu.Lock()
	s.cachedChannels = channels
	s.cachedUsers = users
	s.mu.Unlock()
}

// Receive converts one inbound message into zero or more events, updating
// membership and correlation state along the way. Malformed or partially
// applicable messages are dropped for that message only.
func (s *Session) Receive(msg Message) []Event {
	return s.receive(msg, nil)
}

func (s *Session) receive(msg Message, parent *Context) []Event {
	hasLabel, label := msg.GetTag("label")
	msg.DeleteTag("label")
	hasBatch, batchRef := msg.GetTag("batch")
	msg.DeleteTag("batch")

	// Context resolution priority: explicit parent, then the pending label
	// (consumed at most once), then inheritance from an open batch.
	ctx := parent
	if ctx == nil && hasLabel {
		if stored, ok := s.labels[label]; ok {
			delete(s.labels, label)
			c := stored
			ctx = &c
		}
	}
	if ctx == nil && hasBatch {
		if b, ok := s.batches[batchRef]; ok {
			ctx = b.ctx
		}
	}

	if msg.Command == "BATCH" {
		return s.handleBatch(msg, ctx, hasBatch, batchRef)
	}

	// A message inside an open batch accumulates there instead of emitting.
	if hasBatch {
		if b, ok := s.batches[batchRef]; ok {
			b.events = append(b.events, s.dispatch(msg, ctx)...)
			return nil
		}
	}

	return s.dispatch(msg, ctx)
}

func (s *Session) handleBatch(msg Message, ctx *Context, nestedIn bool, parentRef string) []Event {
	if len(msg.Params) == 0 || len(msg.Params[0]) < 2 {
		return nil
	}
	ref := msg.Params[0][1:]
	switch msg.Params[0][0] {
	case '+':
		s.batches[ref] = &batchState{ctx: ctx}
	case '-':
		closed, ok := s.batches[ref]
		if !ok {
			return nil
		}
		delete(s.batches, ref)
		if nestedIn {
			if parentBatch, ok := s.batches[parentRef]; ok {
				parentBatch.events = append(parentBatch.events, closed.events...)
				return nil
			}
		}
		return closed.events
	}
	return nil
}

func (s *Session) dispatch(msg Message, ctx *Context) []Event {
	command := msg.Command
	defer func() {
		if rerouteTerminals[command] {
			s.reroute = nil
		}
	}()

	// Label-attributed WHOIS replies always land on the originating buffer.
	if ctx != nil && ctx.Kind == ContextWhois {
		return []Event{WithTarget{Message: msg, Nick: s.nick, Buffer: ctx.Buffer}}
	}

	// Servers rarely tag every line of a multi-line response; while a
	// reroute is active, bare numerics and unknown commands follow it.
	if s.reroute != nil && rerouteEligible(command) {
		return []Event{WithTarget{Message: msg, Nick: s.nick, Buffer: *s.reroute}}
	}

	switch command {
	case "CAP":
		s.handleCap(msg)
	case "PRIVMSG", "NOTICE":
		if sender, ok := userFromSource(msg.Source); ok {
			if ctx != nil && foldNick(sender.Nick) == foldNick(s.nick) {
				// Echo of our own send; already displayed on send.
				return nil
			}
		}
	case "NICK":
		return s.handleNick(msg)
	case rplWelcome:
		if len(msg.Params) > 0 && msg.Params[0] != "" {
			s.setNick(msg.Params[0])
		}
	case "QUIT":
		return s.handleQuit(msg)
	case "PART":
		s.handlePart(msg)
	case "JOIN":
		s.handleJoin(msg)
	case "MODE":
		s.handleMode(msg)
	case rplNamReply:
		s.handleNames(msg)
	}

	return []Event{Single{Message: msg, Nick: s.nick}}
}

func (s *Session) handleCap(msg Message) {
	for i, param := range msg.Params {
		if param != "ACK" || i+1 >= len(msg.Params) {
			continue
		}
		for _, capability := range strings.Fields(msg.Params[i+1]) {
			if capability == "labeled-response" {
				s.supportsLabels = true
			}
		}
	}
}

func (s *Session) handleNick(msg Message) []Event {
	sender, ok := userFromSource(msg.Source)
	if !ok || len(msg.Params) == 0 || msg.Params[0] == "" {
		return nil
	}
	newNick := msg.Params[0]
	oldKey := foldNick(sender.Nick)
	ourself := oldKey == foldNick(s.nick)
	if ourself {
		s.setNick(newNick)
	}

	var channels []string
	for _, ch := range s.chanmap {
		member, present := ch.users[oldKey]
		if !present {
			continue
		}
		delete(ch.users, oldKey)
		member.Nick = newNick
		ch.users[foldNick(newNick)] = member
		channels = append(channels, ch.name)
	}
	sort.Strings(channels)

	return []Event{NicknameBroadcast{
		Old:      sender,
		NewNick:  newNick,
		Ourself:  ourself,
		Channels: channels,
	}}
}

func (s *Session) handleQuit(msg Message) []Event {
	sender, ok := userFromSource(msg.Source)
	if !ok {
		return nil
	}
	var comment string
	if len(msg.Params) > 0 {
		comment = msg.Params[0]
	}

	key := foldNick(sender.Nick)
	var channels []string
	for _, ch := range s.chanmap {
		if _, present := ch.users[key]; !present {
			continue
		}
		delete(ch.users, key)
		channels = append(channels, ch.name)
	}
	sort.Strings(channels)

	return []Event{QuitBroadcast{User: sender, Comment: comment, Channels: channels}}
}

func (s *Session) handlePart(msg Message) {
	sender, ok := userFromSource(msg.Source)
	if !ok || len(msg.Params) == 0 {
		return
	}
	channelKey := foldNick(msg.Params[0])
	if foldNick(sender.Nick) == foldNick(s.nick) {
		delete(s.chanmap, channelKey)
		return
	}
	if ch, ok := s.chanmap[channelKey]; ok {
		delete(ch.users, foldNick(sender.Nick))
	}
}

func (s *Session) handleJoin(msg Message) {
	sender, ok := userFromSource(msg.Source)
	if !ok || len(msg.Params) == 0 {
		return
	}
	channel := msg.Params[0]
	channelKey := foldNick(channel)
	if foldNick(sender.Nick) == foldNick(s.nick) {
		s.chanmap[channelKey] = newChannelMembers(channel)
		return
	}
	if ch, ok := s.chanmap[channelKey]; ok {
		ch.users[foldNick(sender.Nick)] = sender
	}
}

func (s *Session) handleMode(msg Message) {
	if len(msg.Params) < 2 || !isChannelName(msg.Params[0]) {
		return
	}
	ch, ok := s.chanmap[foldNick(msg.Params[0])]
	if !ok {
		return
	}

	grant := true
	args := msg.Params[2:]
	for _, r := range msg.Params[1] {
		switch r {
		case '+':
			grant = true
			continue
		case '-':
			grant = false
			continue
		}

		level, membership := accessFromMode(r)
		if !membership {
			if modeTakesArg(r, grant) && len(args) > 0 {
				args = args[1:]
			}
			continue
		}
		if len(args) == 0 {
			return
		}
		nick := args[0]
		args = args[1:]
		member, present := ch.users[foldNick(nick)]
		if !present {
			continue
		}
		if grant {
			member.Access |= level
		} else {
			member.Access &^= level
		}
		ch.users[foldNick(nick)] = member
	}
}

// modeTakesArg reports whether a non-membership channel mode consumes one of
// the mode arguments (list modes and key always, limit only when set).
func modeTakesArg(r rune, grant bool) bool {
	switch r {
	case 'b', 'e', 'I', 'k':
		return true
	case 'l':
		return grant
	}
	return false
}

func (s *Session) handleNames(msg Message) {
	if len(msg.Params) < 2 {
		return
	}
	channel := msg.Params[len(msg.Params)-2]
	ch, ok := s.chanmap[foldNick(channel)]
	if !ok {
		return
	}
	for _, entry := range strings.Fields(msg.Params[len(msg.Params)-1]) {
		if u, ok := userFromNamesEntry(entry); ok {
			ch.users[foldNick(u.Nick)] = u
		}
	}
}

// Send tags and writes one outbound message for the given buffer. When the
// server negotiated labeled-response a fresh label is registered so the reply
// can be attributed; WHO/WHOIS/WHOWAS additionally arm the reroute target for
// their unlabeled continuation lines. Write failures are reported, never
// fatal: the message is simply not delivered.
func (s *Session) Send(buffer Buffer, msg Message) {
	if s.supportsLabels {
		kind := ContextDefault
		if msg.Command == "WHOIS" {
			kind = ContextWhois
		}
		label := s.labelGen.next()
		s.labels[label] = Context{Buffer: buffer, Kind: kind}
		msg.SetTag("label", label)
	}

	switch msg.Command {
	case "WHO", "WHOIS", "WHOWAS":
		target := buffer
		s.reroute = &target
	}

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteMessage(msg); err != nil {
		observability.RecordSendError(s.server.Name)
		log.Warn().
			Str("server", s.server.Name).
			Str("command", msg.Command).
			Err(err).
			Msg("send failed")
		return
	}
	observability.RecordSend(s.server.Name)
}
