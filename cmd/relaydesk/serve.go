package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/handlers"
	"github.com/relaydesk/relaydesk/internal/helpdesk"
	"github.com/relaydesk/relaydesk/internal/identity"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/mail"
	"github.com/relaydesk/relaydesk/internal/media"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/sanitize"
	"github.com/relaydesk/relaydesk/internal/server"
	"github.com/relaydesk/relaydesk/internal/thread"
	"github.com/relaydesk/relaydesk/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideThreadStore,
			provideIdentityCodec,
			provideSanitizer,
			provideMediaStore,
			provideChatClient,
			provideMailSender,
			provideHelpdeskClient,
			provideResolver,
			provideInboundRelay,
			provideOutboundRelay,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideChatWebhookHandler),
			provideServerHandler(provideMailWebhookHandler),
			provideServerHandler(provideFileHandler),
			provideServer,
		),
		fx.Invoke(
			startPruneJob,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.Postgres.DSN()
	if err := thread.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideThreadStore(log *slog.Logger, pool *pgxpool.Pool) thread.Store {
	return thread.NewPGStore(log, pool)
}

func provideIdentityCodec(cfg config.Config) *identity.Codec {
	return identity.NewCodec(cfg.Identity.Domain)
}

func provideSanitizer() *sanitize.Sanitizer {
	return sanitize.New(0, "")
}

func provideMediaStore(log *slog.Logger, cfg config.Config) *media.TempStore {
	return media.NewTempStore(log, time.Duration(cfg.Media.TTLMinutes)*time.Minute)
}

func provideChatClient(log *slog.Logger, cfg config.Config) *chat.Client {
	return chat.NewClient(log, cfg.Chat.APIBase, cfg.Chat.AccessToken, cfg.Chat.PhoneNumberID, cfg.Chat.AppSecret)
}

func provideMailSender(log *slog.Logger, cfg config.Config) mail.Sender {
	if cfg.Mail.Transport == "mailgun" {
		return mail.NewMailgunSender(log, cfg.Mail.Mailgun.Domain, cfg.Mail.Mailgun.APIKey, cfg.Mail.Mailgun.Region)
	}
	return mail.NewSMTPSender(log, cfg.Mail.SMTP.Host, cfg.Mail.SMTP.Port, cfg.Mail.SMTP.Username, cfg.Mail.SMTP.Password, cfg.Mail.SMTP.Security)
}

func provideHelpdeskClient(log *slog.Logger, cfg config.Config) *helpdesk.Client {
	return helpdesk.NewClient(log, cfg.Helpdesk.BaseURL, cfg.Helpdesk.Token)
}

func provideResolver(log *slog.Logger, cfg config.Config, store thread.Store, client *helpdesk.Client) *thread.Resolver {
	var creator thread.CaseCreator
	if cfg.Helpdesk.CreateVia == "api" {
		creator = client
	}
	return thread.NewResolver(log, store, client, creator)
}

func provideInboundRelay(log *slog.Logger, cfg config.Config, codec *identity.Codec, resolver *thread.Resolver, client *chat.Client, sender mail.Sender) *relay.Inbound {
	return relay.NewInbound(log, codec, resolver, client, sender, cfg.Mail.HelpdeskInbox, cfg.Media.MaxEmailBytes)
}

func provideOutboundRelay(log *slog.Logger, cfg config.Config, codec *identity.Codec, resolver *thread.Resolver, sanitizer *sanitize.Sanitizer, client *chat.Client, blobs *media.TempStore, hd *helpdesk.Client) *relay.Outbound {
	return relay.NewOutbound(log, codec, resolver, sanitizer, client, blobs, hd, relay.OutboundConfig{
		PublicBaseURL:      cfg.Server.PublicBaseURL,
		AllowedSenders:     cfg.Mail.AllowedSenders,
		MaxFileBytes:       cfg.Media.MaxChatFileBytes,
		MaxAttachments:     cfg.Media.MaxChatAttachments,
		ReplyChannel:       helpdesk.ReplyChannel(cfg.Helpdesk.ReplyChannel),
		AttributeRepliesTo: helpdesk.Attribution(cfg.Helpdesk.AttributeRepliesTo),
	})
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideChatWebhookHandler(log *slog.Logger, cfg config.Config, client *chat.Client, inbound *relay.Inbound) *handlers.ChatWebhookHandler {
	return handlers.NewChatWebhookHandler(log, client, inbound, cfg.Chat.VerifyToken)
}

func provideMailWebhookHandler(log *slog.Logger, cfg config.Config, outbound *relay.Outbound) *handlers.MailWebhookHandler {
	return handlers.NewMailWebhookHandler(log, outbound, cfg.Mail.Mailgun.WebhookSigningKey)
}

func provideFileHandler(log *slog.Logger, blobs *media.TempStore) *handlers.FileHandler {
	return handlers.NewFileHandler(log, blobs)
}

type serverParams struct {
	fx.In

	Config         config.Config
	Logger         *slog.Logger
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Config.Server.Addr, params.Logger, params.ServerHandlers)
}

func startPruneJob(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, store thread.Store) error {
	maxAge := time.Duration(cfg.Maintenance.ThreadMaxAgeDays) * 24 * time.Hour
	c := cron.New()
	_, err := c.AddFunc(cfg.Maintenance.PruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pruned, err := store.PruneStale(ctx, time.Now().Add(-maxAge))
		if err != nil {
			log.Error("thread prune failed", slog.Any("error", err))
			return
		}
		log.Info("pruned stale threads", slog.Int64("count", pruned))
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", cfg.Maintenance.PruneSchedule, err)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { c.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Relaydesk %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
