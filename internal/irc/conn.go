package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog/log"

	"github.com/quillirc/quill/internal/observability"
)

const (
	// reconnectDelay is the fixed wait enforced between a failed attempt
	// and the next retry, measured from the failure instant.
	reconnectDelay = 10 * time.Second

	// flushInterval is the inbound batcher period. A tick with an empty
	// buffer emits nothing; it is a debouncer, not a heartbeat.
	flushInterval = 50 * time.Millisecond
)

var ErrNicknameRequired = errors.New("irc: nickname required")

// ServerOptions configures one server connection. Values come validated from
// the application's config loader.
type ServerOptions struct {
	Address          string
	TLS              bool
	TLSInsecure      bool
	ServerName       string
	Password         string
	Nickname         string
	Username         string
	Realname         string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
}

func (o ServerOptions) withDefaults() ServerOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 15 * time.Second
	}
	if o.Username == "" {
		o.Username = o.Nickname
	}
	if o.Realname == "" {
		o.Realname = o.Nickname
	}
	return o
}

// Update is one supervisor lifecycle notification.
type Update interface {
	isUpdate()
}

// Connected reports a live transport. Initial is true only for the first
// successful connection of the supervisor's lifetime.
type Connected struct {
	Server  Server
	Conn    *Conn
	Initial bool
}

// Disconnected reports the loss of an established transport.
type Disconnected struct {
	Server  Server
	Initial bool
	Err     error
}

// ConnectionFailed reports a failed connection attempt.
type ConnectionFailed struct {
	Server Server
	Err    error
}

// MessagesReceived carries one flushed inbound batch in arrival order.
type MessagesReceived struct {
	Server   Server
	Messages []Message
}

func (Connected) isUpdate()        {}
func (Disconnected) isUpdate()     {}
func (ConnectionFailed) isUpdate() {}
func (MessagesReceived) isUpdate() {}

// Conn is the write side of a live transport, safe for concurrent senders.
type Conn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *Conn) WriteMessage(msg Message) error {
	line, err := msg.LineBytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(line)
	return err
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Supervisor keeps exactly one live transport for its server, reconnecting
// after failure and batching inbound traffic. One Run per server.
type Supervisor struct {
	server Server
	opts   ServerOptions
}

func NewSupervisor(server Server, opts ServerOptions) (*Supervisor, error) {
	if strings.TrimSpace(opts.Nickname) == "" {
		return nil, ErrNicknameRequired
	}
	return &Supervisor{server: server, opts: opts.withDefaults()}, nil
}

// Run drives the connection lifecycle until ctx is cancelled. Reconnection is
// unconditional; removing the server (cancelling ctx) is the only way to stop
// retrying.
func (s *Supervisor) Run(ctx context.Context, updates chan<- Update) {
	initial := true
	var lastRetry time.Time

	for {
		if wait := reconnectWait(lastRetry, time.Now()); wait > 0 {
			if !sleepCtx(ctx, wait) {
				return
			}
		}

		conn, reader, pending, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.RecordConnectFailure(s.server.Name)
			log.Warn().Str("server", s.server.Name).Err(err).Msg("connect failed")
			if !deliver(ctx, updates, ConnectionFailed{Server: s.server, Err: err}) {
				return
			}
			lastRetry = time.Now()
			continue
		}

		wasInitial := initial
		initial = false
		if !wasInitial {
			observability.RecordReconnect(s.server.Name)
		}
		if !deliver(ctx, updates, Connected{Server: s.server, Conn: conn, Initial: wasInitial}) {
			_ = conn.Close()
			return
		}

		err = s.pump(ctx, conn, reader, pending, updates)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("server", s.server.Name).Err(err).Msg("connection lost")
		if !deliver(ctx, updates, Disconnected{Server: s.server, Initial: wasInitial, Err: err}) {
			return
		}
		lastRetry = time.Now()
	}
}

// reconnectWait returns the remainder of the fixed reconnect delay measured
// from the last failure, clamped to zero. A zero lastRetry means connect
// immediately.
func reconnectWait(lastRetry, now time.Time) time.Duration {
	if lastRetry.IsZero() {
		return 0
	}
	remaining := reconnectDelay - now.Sub(lastRetry)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func deliver(ctx context.Context, updates chan<- Update, update Update) bool {
	select {
	case updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

// connect dials the server, performs capability negotiation, and registers
// the configured identity. Negotiation anomalies degrade to a partial
// capability set; only transport errors fail the attempt.
func (s *Supervisor) connect(ctx context.Context) (*Conn, *bufio.Reader, *Message, error) {
	dialer := net.Dialer{Timeout: s.opts.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", s.opts.Address)
	if err != nil {
		return nil, nil, nil, err
	}

	netConn := raw
	if s.opts.TLS {
		tlsConn := tls.Client(raw, s.clientTLSConfig())
		handshakeCtx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
		err := tlsConn.HandshakeContext(handshakeCtx)
		cancel()
		if err != nil {
			_ = raw.Close()
			return nil, nil, nil, err
		}
		netConn = tlsConn
	}

	conn := &Conn{conn: netConn}
	reader := bufio.NewReader(netConn)

	_ = netConn.SetDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	pending, err := negotiate(s.server, conn, reader)
	if err != nil {
		_ = netConn.Close()
		return nil, nil, nil, err
	}
	if err := s.register(conn); err != nil {
		_ = netConn.Close()
		return nil, nil, nil, err
	}
	_ = netConn.SetDeadline(time.Time{})

	return conn, reader, pending, nil
}

func (s *Supervisor) clientTLSConfig() *tls.Config {
	serverName := s.opts.ServerName
	if serverName == "" {
		if host, _, err := net.SplitHostPort(s.opts.Address); err == nil {
			serverName = host
		}
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: s.opts.TLSInsecure,
	}
}

// negotiate runs the CAP LS/REQ exchange. The listing loop is deliberately
// lenient: any reply shape it does not recognize ends the listing with the
// capabilities collected so far rather than waiting on a continuation that
// may never arrive. A parseable non-listing message that ended the loop is
// returned so the caller can feed it into the inbound stream instead of
// losing it.
func negotiate(server Server, conn *Conn, reader *bufio.Reader) (*Message, error) {
	if err := conn.WriteMessage(ircmsg.MakeMessage(nil, "", "CAP", "LS", "302")); err != nil {
		return nil, err
	}

	var advertised []string
	var leftover *Message
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		msg, err := ircmsg.ParseLine(strings.TrimRight(line, "\r\n"))
		if err != nil {
			log.Warn().Str("server", server.Name).Err(err).Msg("capability listing ended early")
			break
		}
		if msg.Command != "CAP" || len(msg.Params) < 3 || msg.Params[1] != "LS" {
			log.Warn().
				Str("server", server.Name).
				Str("command", msg.Command).
				Msg("capability listing ended early")
			leftover = &msg
			break
		}
		if msg.Params[2] == "*" && len(msg.Params) >= 4 {
			advertised = append(advertised, strings.Fields(msg.Params[3])...)
			continue
		}
		advertised = append(advertised, strings.Fields(msg.Params[2])...)
		break
	}

	request := capRequest(advertised)
	if len(request) == 0 {
		return leftover, nil
	}
	return leftover, conn.WriteMessage(ircmsg.MakeMessage(nil, "", "CAP", "REQ", strings.Join(request, " ")))
}

// capRequest intersects advertised capabilities with the set the engine
// uses. echo-message is only usable together with labeled-response: without
// label correlation an echo cannot be attributed to its send.
func capRequest(advertised []string) []string {
	have := make(map[string]bool, len(advertised))
	for _, capability := range advertised {
		name, _, _ := strings.Cut(capability, "=")
		have[name] = true
	}

	var request []string
	if have["server-time"] {
		request = append(request, "server-time")
	}
	if have["batch"] {
		request = append(request, "batch")
	}
	if have["echo-message"] && have["labeled-response"] {
		request = append(request, "echo-message", "labeled-response")
	}
	return request
}

// register ends capability negotiation and sends the configured identity.
// It always runs: a degraded or empty capability set is not fatal.
func (s *Supervisor) register(conn *Conn) error {
	if err := conn.WriteMessage(ircmsg.MakeMessage(nil, "", "CAP", "END")); err != nil {
		return err
	}
	if s.opts.Password != "" {
		if err := conn.WriteMessage(ircmsg.MakeMessage(nil, "", "PASS", s.opts.Password)); err != nil {
			return err
		}
	}
	if err := conn.WriteMessage(ircmsg.MakeMessage(nil, "", "NICK", s.opts.Nickname)); err != nil {
		return err
	}
	return conn.WriteMessage(ircmsg.MakeMessage(nil, "", "USER", s.opts.Username, "0", "*", s.opts.Realname))
}

// pump reads inbound messages and flushes them in fixed-interval batches.
// A message consumed during negotiation is seeded into the first batch so it
// reaches the session. Returns when the transport fails or ctx is cancelled.
func (s *Supervisor) pump(ctx context.Context, conn *Conn, reader *bufio.Reader, pending *Message, updates chan<- Update) error {
	msgs := make(chan Message)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				errc <- err
				return
			}
			trimmed := strings.TrimRight(line, "\r\n")
			if trimmed == "" {
				continue
			}
			msg, err := ircmsg.ParseLine(trimmed)
			if err != nil {
				log.Debug().Str("server", s.server.Name).Err(err).Msg("dropped unparsable line")
				continue
			}
			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var buffer []Message
	if pending != nil {
		buffer = append(buffer, *pending)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case msg := <-msgs:
			if msg.Command == "PING" {
				if err := conn.WriteMessage(ircmsg.MakeMessage(nil, "", "PONG", msg.Params...)); err != nil {
					return err
				}
			}
			buffer = append(buffer, msg)
		case <-ticker.C:
			if len(buffer) == 0 {
				continue
			}
			batch := buffer
			buffer = nil
			observability.RecordInboundBatch(s.server.Name, len(batch))
			if !deliver(ctx, updates, MessagesReceived{Server: s.server, Messages: batch}) {
				return ctx.Err()
			}
		}
	}
}
