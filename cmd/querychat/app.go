package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/auth"
	"github.com/capitalize-ai/querychat/internal/config"
	natsclient "github.com/capitalize-ai/querychat/internal/nats"
	"github.com/capitalize-ai/querychat/internal/remote"
	"github.com/capitalize-ai/querychat/internal/session"
	"github.com/capitalize-ai/querychat/internal/store"
	"github.com/capitalize-ai/querychat/internal/view"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// app is the wired engine shared by the subcommands.
type app struct {
	auth       *auth.Session
	remote     *remote.Client
	events     *view.Broadcaster
	store      *store.Store
	controller *session.Controller
	expiry     *session.Expiry
	nats       *natsclient.Client
}

// newApp constructs the engine. With NATS configured, view events are also
// mirrored into JetStream.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{}

	var viewOpts []view.Option
	if cfg.NATSEnabled() {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, err
		}
		publisher := natsclient.NewPublisher(nc)
		if err := publisher.EnsureStream(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
		a.nats = nc
		viewOpts = append(viewOpts, view.WithPublisher(publisher))
	}

	a.auth = auth.NewSession(cfg.JWTSecret, log)
	a.remote = remote.NewClient(cfg.RemoteAPIURL, a.auth, log)
	a.events = view.NewBroadcaster(log, viewOpts...)
	a.expiry = session.NewExpiry(a.auth, cfg.LogoutDelay, log)
	a.store = store.New(a.remote, a.events, log, store.WithSessionExpired(a.expiry.Expire))
	a.controller = session.NewController(a.store, a.remote, a.events, a.expiry, session.Config{
		QueryTimeout: cfg.QueryTimeout,
	}, log)

	a.auth.OnLogout(a.events.LoggedOut)

	log.Info("engine ready",
		zap.String("remote_api_url", cfg.RemoteAPIURL),
		zap.Bool("nats", a.nats != nil),
	)
	return a, nil
}

func (a *app) Close() {
	a.expiry.Close()
	a.events.Close()
	if a.nats != nil {
		a.nats.Close()
	}
}
