package irc

// Server identifies one configured network connection and keys every
// per-server structure.
type Server struct {
	Name string
	Host string
}

func (s Server) String() string {
	return s.Name
}

// BufferKind distinguishes the three targetable buffer classes.
type BufferKind int

const (
	BufferServer BufferKind = iota
	BufferChannel
	BufferQuery
)

// Buffer addresses the UI surface a message belongs to: the server status
// buffer, a channel, or a direct-message query.
type Buffer struct {
	Server Server
	Kind   BufferKind
	Target string
}

func ServerBuffer(server Server) Buffer {
	return Buffer{Server: server, Kind: BufferServer}
}

func ChannelBuffer(server Server, channel string) Buffer {
	return Buffer{Server: server, Kind: BufferChannel, Target: channel}
}

func QueryBuffer(server Server, nick string) Buffer {
	return Buffer{Server: server, Kind: BufferQuery, Target: nick}
}

// ContextKind marks the few commands whose replies need special attribution.
type ContextKind int

const (
	ContextDefault ContextKind = iota
	ContextWhois
)

// Context records why a command was sent: the buffer it originated from and,
// for WHOIS, a kind that redirects every attributed reply to that buffer.
type Context struct {
	Buffer Buffer
	Kind   ContextKind
}

// Event is one derived output of the session state machine.
type Event interface {
	isEvent()
}

// Single is a message for default routing, paired with the nickname resolved
// at the time it was handled.
type Single struct {
	Message Message
	Nick    string
}

// WithTarget is a message redirected to a specific buffer, used for labeled
// WHOIS replies and rerouted multi-line responses.
type WithTarget struct {
	Message Message
	Nick    string
	Buffer  Buffer
}

// QuitBroadcast fans a QUIT out to every channel the user was in.
type QuitBroadcast struct {
	User     User
	Comment  string
	Channels []string
}

// NicknameBroadcast fans a nick change out to every channel the old nickname
// was in. Ourself marks a change of our own nickname.
type NicknameBroadcast struct {
	Old      User
	NewNick  string
	Ourself  bool
	Channels []string
}

func (Single) isEvent()            {}
func (WithTarget) isEvent()        {}
func (QuitBroadcast) isEvent()     {}
func (NicknameBroadcast) isEvent() {}
