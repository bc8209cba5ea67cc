package main

import (
	"context"
	"flag"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/sealos/tty-agent/internal/auth"
	"github.com/sealos/tty-agent/internal/config"
	"github.com/sealos/tty-agent/internal/execbridge"
	"github.com/sealos/tty-agent/internal/gateway"
	"github.com/sealos/tty-agent/internal/httpapi"
	"github.com/sealos/tty-agent/internal/logging"
	"github.com/sealos/tty-agent/internal/operator"
	"github.com/sealos/tty-agent/internal/ticket"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (defaults to $CONFIG_PATH or ./config.json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Debug)

	tickets := ticket.New(cfg.TicketTTL())
	sweeper := ticket.NewSweeper(logger, tickets, cfg.TicketTTL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	bridge := execbridge.New()

	gw := gateway.New(gateway.Config{
		AllowedOrigins:    cfg.WSAllowedOrigins,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		AuthTimeout:       cfg.AuthTimeout(),
		MaxPayloadBytes:   cfg.WSMaxPayloadBytes,
	}, tickets, bridge, logger)

	var authHandler *auth.Handler
	if cfg.Auth.GitHubEnabled {
		authHandler = auth.NewHandler(auth.Config{
			GitHubClientID:     cfg.Auth.GitHubClientID,
			GitHubClientSecret: cfg.Auth.GitHubClientSecret,
			BaseURL:            cfg.Auth.BaseURL,
			AllowedUsers:       cfg.Auth.AllowedUsers,
		}, logger)
	}

	surface := httpapi.New(tickets, logger, cfg.WSTicketMaxKubeconfigB, gw.ActiveSessions, authHandler)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	surface.Register(router)
	operator.New(logger, cfg.WSTicketMaxKubeconfigB, authHandler).Register(router)
	router.GET("/exec", gw.HandleExec)

	logger.WithField("port", cfg.Port).Info("starting sealos-tty-agent")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}
