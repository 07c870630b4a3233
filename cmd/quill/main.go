package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog/log"

	"github.com/quillirc/quill/internal/config"
	"github.com/quillirc/quill/internal/irc"
	"github.com/quillirc/quill/internal/logging"
	"github.com/quillirc/quill/internal/observability"
)

func main() {
	configPath := flag.String("config", "quill.toml", "path to configuration file")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Str("path", *configPath).Msg("load config")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := irc.NewRegistry()
	meta := make(map[irc.Server]serverMeta, len(cfg.Servers))
	updates := make(chan irc.Update)

	for name, serverCfg := range cfg.Servers {
		server := irc.Server{Name: name, Host: serverCfg.Address}
		registry.Disconnected(server)
		meta[server] = serverMeta{nick: serverCfg.Nickname, channels: serverCfg.Channels}

		supervisor, err := irc.NewSupervisor(server, irc.ServerOptions{
			Address:     serverCfg.HostPort(),
			TLS:         serverCfg.TLS,
			TLSInsecure: serverCfg.TLSInsecure,
			Password:    serverCfg.Password,
			Nickname:    serverCfg.Nickname,
			Username:    cfg.Username,
			Realname:    cfg.Realname,
		})
		if err != nil {
			log.Error().Err(err).Str("server", name).Msg("configure server")
			os.Exit(1)
		}
		go supervisor.Run(ctx, updates)
	}

	if cfg.Status.Addr != "" {
		statusServer := observability.NewServer(cfg.Status.Addr, cfg.Status.CorsOrigins, func() any {
			return snapshot(registry)
		})
		go func() {
			if err := statusServer.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("status server stopped")
			}
		}()
	}

	drain(ctx, registry, updates, meta)
}

type serverMeta struct {
	nick     string
	channels []string
}

func drain(ctx context.Context, registry *irc.Registry, updates <-chan irc.Update, meta map[irc.Server]serverMeta) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			handleUpdate(registry, update, meta)
		}
	}
}

func handleUpdate(registry *irc.Registry, update irc.Update, meta map[irc.Server]serverMeta) {
	switch u := update.(type) {
	case irc.Connected:
		log.Info().
			Str("server", u.Server.Name).
			Bool("initial", u.Initial).
			Msg("connected")
		session := irc.NewSession(u.Server, u.Conn, nickFor(registry, u.Server, meta[u.Server].nick))
		registry.Ready(u.Server, session)
		buffer := irc.ServerBuffer(u.Server)
		for _, channel := range meta[u.Server].channels {
			registry.Send(buffer, ircmsg.MakeMessage(nil, "", "JOIN", channel))
		}

	case irc.Disconnected:
		log.Warn().Str("server", u.Server.Name).Err(u.Err).Msg("disconnected")
		registry.Disconnected(u.Server)

	case irc.ConnectionFailed:
		log.Warn().Str("server", u.Server.Name).Err(u.Err).Msg("connection failed")

	case irc.MessagesReceived:
		for _, msg := range u.Messages {
			for _, event := range registry.Receive(u.Server, msg) {
				logEvent(u.Server, event)
			}
		}
		registry.Sync(u.Server)
	}
}

// nickFor threads the last resolved nickname into a replacement session so a
// reconnect does not forget a nick change; a fresh session starts from the
// configured nickname.
func nickFor(registry *irc.Registry, server irc.Server, configured string) string {
	if nick, ok := registry.Nickname(server); ok && nick != "" {
		return nick
	}
	return configured
}

func logEvent(server irc.Server, event irc.Event) {
	switch e := event.(type) {
	case irc.Single:
		log.Info().
			Str("server", server.Name).
			Str("command", e.Message.Command).
			Strs("params", e.Message.Params).
			Msg("message")
	case irc.WithTarget:
		log.Info().
			Str("server", server.Name).
			Str("command", e.Message.Command).
			Str("target", e.Buffer.Target).
			Msg("message")
	case irc.QuitBroadcast:
		log.Info().
			Str("server", server.Name).
			Str("nick", e.User.Nick).
			Strs("channels", e.Channels).
			Msg("quit")
	case irc.NicknameBroadcast:
		log.Info().
			Str("server", server.Name).
			Str("old", e.Old.Nick).
			Str("new", e.NewNick).
			Bool("ourself", e.Ourself).
			Msg("nick change")
	}
}

type serverStatus struct {
	Name      string              `json:"name"`
	Connected bool                `json:"connected"`
	Nickname  string              `json:"nickname,omitempty"`
	Channels  map[string][]string `json:"channels,omitempty"`
}

func snapshot(registry *irc.Registry) []serverStatus {
	servers := registry.Servers()
	out := make([]serverStatus, 0, len(servers))
	for _, server := range servers {
		status := serverStatus{
			Name:      server.Name,
			Connected: registry.IsConnected(server),
		}
		if nick, ok := registry.Nickname(server); ok {
			status.Nickname = nick
		}
		if chans := registry.Channels(server); len(chans) > 0 {
			status.Channels = make(map[string][]string, len(chans))
			for _, channel := range chans {
				users := registry.ChannelUsers(server, channel)
				nicks := make([]string, 0, len(users))
				for _, u := range users {
					nicks = append(nicks, u.Access.Symbol()+u.Nick)
				}
				status.Channels[channel] = nicks
			}
		}
		out = append(out, status)
	}
	return out
}
