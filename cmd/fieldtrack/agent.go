package main

import (
	"context"
	"fmt"

	"fieldtrack/internal/channel"
	"fieldtrack/internal/config"
	"fieldtrack/internal/coordinator"
	"fieldtrack/internal/dispatch"
	"fieldtrack/internal/location"
	"fieldtrack/internal/logger"
	"fieldtrack/internal/store"
	"fieldtrack/internal/track"
)

// agent is the fully wired component graph: coordinator owns the tracking
// session, which owns references to the connection manager and the
// acquisition engine.
type agent struct {
	cfg     *config.Config
	logger  *logger.Logger
	techID  string
	client  *dispatch.Client
	channel *channel.Manager
	session *track.Session
	coord   *coordinator.Coordinator
	store   *store.Store
}

// buildAgent loads config, authenticates, and constructs the component
// graph. Nothing is connected yet; callers decide when to bring the channel
// up.
func buildAgent(ctx context.Context, flags *rootFlags) (*agent, error) {
	log := logger.New("fieldtrack-agent")

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "config_loaded", "Configuration loaded", nil)

	client := dispatch.NewClient(cfg.Dispatch.BaseURL, cfg.Dispatch.Timeout.Std(), log)

	// identity comes from the login token's subject claim
	token := flags.token
	if token == "" {
		if flags.email == "" || flags.password == "" {
			return nil, fmt.Errorf("either --token or --email/--password is required")
		}
		token, err = client.Login(ctx, flags.email, flags.password)
		if err != nil {
			return nil, fmt.Errorf("login failed: %w", err)
		}
	} else {
		client.SetToken(token)
	}

	identity, err := dispatch.ParseIdentity(token)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "authenticated", "Technician authenticated", map[string]any{
		"tech_id": identity.TechID,
	})

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	device := location.NewSimDevice(flags.simLat, flags.simLng)
	engine := location.NewEngine(device, location.Config{
		StalenessWindow: cfg.Location.StalenessWindow.Std(),
		Tiers: []location.Tier{
			{Accuracy: location.AccuracyHigh, Timeout: cfg.Location.TierHigh.Std()},
			{Accuracy: location.AccuracyBalanced, Timeout: cfg.Location.TierBalanced.Std()},
			{Accuracy: location.AccuracyLow, Timeout: cfg.Location.TierLow.Std()},
			{Accuracy: location.AccuracyLowest, Timeout: cfg.Location.TierLowest.Std()},
		},
	}, log)

	wsDialer := channel.NewWebSocketDialer(cfg.Channel.URL)
	dialer := wsDialer
	if cfg.Channel.PollingFallback {
		dialer = channel.NewFallbackDialer(wsDialer, channel.NewPollingDialer(cfg.Channel.URL))
	}
	mgr := channel.NewManager(dialer, channel.Config{
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectDelay:    cfg.Channel.ReconnectDelay.Std(),
	}, log)

	session := track.NewSession(engine, mgr, identity.TechID, track.Config{
		JobInterval:           cfg.Tracking.JobInterval.Std(),
		JobMinDistanceM:       cfg.Tracking.JobMinDistanceM,
		StandaloneInterval:    cfg.Tracking.StandaloneInterval.Std(),
		StandaloneMinDistance: cfg.Tracking.StandaloneMinDistance,
	}, log)

	// disconnect is the one path that tears down an active session
	mgr.OnDisconnect(session.StopAll)

	coord := coordinator.New(identity.TechID, session, client, st, log)

	return &agent{
		cfg:     cfg,
		logger:  log,
		techID:  identity.TechID,
		client:  client,
		channel: mgr,
		session: session,
		coord:   coord,
		store:   st,
	}, nil
}

// shutdown tears the agent down: channel first (which stops tracking), then
// the local store and the credential.
func (a *agent) shutdown(ctx context.Context) {
	a.channel.Disconnect()
	if err := a.store.Close(); err != nil {
		a.logger.Error(ctx, "store_close_failed", "Could not close job store", err, nil)
	}
	a.client.ClearToken()
	a.logger.Info(ctx, "agent_stopped", "Agent stopped", nil)
}
