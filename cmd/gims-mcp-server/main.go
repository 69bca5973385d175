package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/gelarm/gims-automation-mcp-server/internal/admin"
	"github.com/gelarm/gims-automation-mcp-server/internal/auth"
	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
	"github.com/gelarm/gims-automation-mcp-server/internal/httpclient"
	"github.com/gelarm/gims-automation-mcp-server/internal/logstream"
	"github.com/gelarm/gims-automation-mcp-server/internal/publisher"
	"github.com/gelarm/gims-automation-mcp-server/internal/rate"
	internalsecrets "github.com/gelarm/gims-automation-mcp-server/internal/secrets"
	"github.com/gelarm/gims-automation-mcp-server/internal/tools"
	"github.com/gelarm/gims-automation-mcp-server/pkg/config"
	"github.com/gelarm/gims-automation-mcp-server/pkg/logger"
	"github.com/gelarm/gims-automation-mcp-server/pkg/secrets"
	"github.com/gelarm/gims-automation-mcp-server/pkg/utils"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg, err := config.Load(os.Args[1:])
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infow("starting [gims-mcp-server]...", "version", version, "gims", cfg.BaseURL)

	// --- Initial tokens (environment or AWS Secrets Manager) ---
	initial := auth.Credentials{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken}
	if cfg.SecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		resolver := internalsecrets.NewTokenResolver(logger.L(), awsProvider,
			secrets.NewCache[auth.Credentials](time.Hour))
		initial, err = resolver.Resolve(ctx, cfg.SecretName)
		if err != nil {
			logg.Fatalw("failed to resolve GIMS tokens", "secret", cfg.SecretName, "error", err)
		}
	}

	// --- Optional Redis token persistence ---
	var rdb *redis.Client
	var sink *auth.RedisTokenSink
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Password: cfg.RedisPass})
		sink = auth.NewRedisTokenSink(logger.L(), rdb, cfg.BaseURL, initial)
		initial = sink.Restore(ctx, initial)
	}
	store := auth.NewStore(initial)

	// --- Optional NATS event publisher ---
	var pub *publisher.Publisher
	if cfg.NATSURL != "" {
		logg.Info("connecting to NATS: ", utils.MaskDSN(cfg.NATSURL))
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Warnw("failed to connect to NATS; events disabled", "error", err)
		} else if pub, err = publisher.New(nc, cfg.NATSSubject, cfg.ServiceName); err != nil {
			logg.Warnw("failed to init publisher; events disabled", "error", err)
			nc.Close()
			pub = nil
		}
	}

	// --- Refresh gate ---
	apiClient, streamClient := gims.NewHTTPClients(cfg.VerifyTLS, cfg.RequestTimeout)
	refresher := auth.NewHTTPRefresher(logger.L(), apiClient, cfg.BaseURL+cfg.RefreshPath)
	var gateOpts []auth.GateOption
	if sink != nil {
		gateOpts = append(gateOpts, auth.WithSink(sink))
	}
	if pub != nil {
		gateOpts = append(gateOpts, auth.WithHooks(pub.AuthHooks(cfg.BaseURL)))
	}
	gate := auth.NewGate(logger.L(), store, refresher, gateOpts...)

	// --- GIMS client ---
	transport := gims.NewTransport(logger.L(), cfg.APIBaseURL(), store, gate, apiClient, streamClient)
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	})
	exec := httpclient.New(logger.L(), rateMgr, cfg.RetryMax, "gims", gims.IsTransient)
	client := gims.NewClient(transport, exec)

	// --- Log stream consumer ---
	consumer := logstream.NewConsumer(logger.L(), client, transport, logstream.Config{
		SiteURL:        cfg.BaseURL,
		DefaultTimeout: cfg.LogStreamTimeout,
		MaxBytes:       cfg.MaxResponseBytes,
	})
	if pub != nil {
		consumer.OnDone(pub.OnLogStreamDone)
	}

	// --- MCP server ---
	s := server.NewMCPServer("gims-mcp-server", version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	handlers := tools.New(logger.L(), client, consumer, cfg.MaxResponseBytes)
	handlers.Register(s)
	stopCleaner := make(chan struct{})
	go handlers.CleanReferences(tools.ReferenceTTL, stopCleaner)

	// --- Optional admin HTTP server ---
	var app *fiber.App
	if cfg.AdminPort > 0 {
		app = fiber.New(fiber.Config{DisableStartupMessage: true})
		deps := admin.Deps{Auth: gate}
		if pub != nil {
			deps.Broker = pub
		}
		if rdb != nil {
			deps.Redis = rdb
		}
		admin.RegisterRoutes(app, deps)
		go func() {
			logg.Infof("admin HTTP listening on :%d", cfg.AdminPort)
			if err := app.Listen(fmt.Sprintf(":%d", cfg.AdminPort)); err != nil {
				logg.Errorw("fiber.listen_failed", "error", err)
			}
		}()
	}

	// --- Serve MCP over stdio until stdin closes or a signal arrives ---
	logg.Infow("[gims-mcp-server] running",
		"env", cfg.Env,
		"redis", cfg.RedisAddr != "",
		"nats", pub != nil,
		"admin_port", cfg.AdminPort)

	if err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logg.Errorw("mcp.serve_failed", "error", err)
	}
	logg.Info("shutting down [gims-mcp-server]...")

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logg.Warnw("fiber.shutdown_failed", "error", err)
		}
	}
	close(stopCleaner)
	gate.Flush()
	if pub != nil {
		pub.Close()
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logg.Warnw("redis.close_failed", "error", err)
		}
	}
}
