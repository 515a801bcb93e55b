package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/BIDS-Xu-Lab/opendx/internal/agent"
	"github.com/BIDS-Xu-Lab/opendx/internal/config"
	"github.com/BIDS-Xu-Lab/opendx/internal/ratelimit"
	"github.com/BIDS-Xu-Lab/opendx/internal/server"
	"github.com/BIDS-Xu-Lab/opendx/internal/store"
	"github.com/BIDS-Xu-Lab/opendx/internal/usertoken"
	"github.com/BIDS-Xu-Lab/opendx/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	agentTimeout, err := config.ParseAgentTimeout(cfg.AgentTimeout)
	if err != nil {
		log.Fatalf("failed to parse agent timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var caseStore store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init database: %v", err)
		}
		caseStore = gormStore
	} else {
		slog.Warn("no database configured, conversations are kept in memory")
		caseStore = store.NewMemoryStore()
	}

	var verifier *usertoken.Verifier
	if cfg.JWTSecret != "" {
		verifier, err = usertoken.NewVerifier(usertoken.Config{
			Secret:   cfg.JWTSecret,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			log.Fatalf("failed to init token verifier: %v", err)
		}
	} else {
		slog.Warn("no JWT secret configured, all requests are treated as anonymous")
	}

	var streamer agent.Streamer
	if cfg.UseMockChat {
		slog.Info("using mock agent streamer", "delay_ms", cfg.MockProgressDelayMS)
		streamer = agent.NewMock(time.Duration(cfg.MockProgressDelayMS) * time.Millisecond)
	} else {
		streamer = agent.NewClient(cfg.AgentServiceURL, agentTimeout)
	}

	var chatLimiter *ratelimit.FixedWindowLimiter
	if cfg.ChatRateLimitPerMinute > 0 {
		chatLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "opendx:ratelimit:chat",
			cfg.ChatRateLimitPerMinute, time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init chat rate limiter: %v", err)
		}
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxy CIDRs: %v", err)
	}

	httpServer := server.New(server.Config{
		Store:          caseStore,
		Streamer:       streamer,
		TokenVerifier:  verifier,
		ChatLimiter:    chatLimiter,
		TrustedProxies: trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// SSE streams stay open for the length of an agent run, so no
		// write timeout here; the upstream read timeout bounds the stream.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
