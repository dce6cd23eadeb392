package main

import (
	"OmniHub/bot"
	"OmniHub/impl/core"
	"OmniHub/internal/broker"
	"OmniHub/internal/config"
	repository "OmniHub/internal/database"
	"OmniHub/internal/http-server/api"
	"OmniHub/internal/lib/logger"
	"OmniHub/internal/lib/sl"
	"OmniHub/internal/service/attachments"
	"OmniHub/internal/service/auth"
	"OmniHub/internal/service/consumer"
	"OmniHub/internal/service/conversation"
	"OmniHub/internal/service/ingest"
	"OmniHub/internal/service/outbox"
	"OmniHub/internal/ws"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.BotName, conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", slog.String("error", err.Error()))
		} else {
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelError)
			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram bot initialized")
		}
	}

	lg.Info("starting omnihub", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	handler := core.New(lg)

	authService := auth.NewAuthService(lg, conf.Listen.ApiKey)
	handler.SetAuthService(authService)

	db, err := repository.NewMongoClient(conf, lg)
	if err != nil {
		lg.With(
			sl.Err(err),
		).Error("mongo client")
		return
	}
	if db == nil {
		lg.Error("mongo is disabled in config; the projection cannot run without it")
		return
	}
	if err := db.EnsureIndexes(); err != nil {
		lg.With(
			sl.Err(err),
		).Error("ensure indexes")
		return
	}
	authService.SetRepository(db)
	handler.SetRepository(db)
	lg.With(
		slog.String("host", conf.Mongo.Host),
		slog.String("port", conf.Mongo.Port),
		slog.String("user", conf.Mongo.User),
		slog.String("database", conf.Mongo.Database),
	).Info("mongo client initialized")

	br, err := broker.Connect(conf, lg)
	if err != nil {
		lg.With(
			sl.Err(err),
		).Error("broker connect")
		return
	}
	defer br.Close()
	lg.With(
		slog.String("exchange", conf.Rabbit.Exchange),
		slog.Int("buckets", conf.Rabbit.Buckets),
	).Info("broker connected")

	hub := ws.NewHub(lg)
	go hub.Run()

	rpc := broker.NewRPCClient(br, time.Duration(conf.Rabbit.RPCTimeoutSec)*time.Second, lg)
	pipeline := attachments.NewPipeline(rpc, db, conf, lg)

	conv := conversation.NewService(db, pipeline, hub, lg)
	handler.SetConversations(conv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := outbox.NewWorker(db, br, tgAlerter(tgBot), conf, lg)
	go worker.Run(ctx)

	cons := consumer.NewService(br, conv, br, tgAlerter(tgBot), conf, lg)
	if err := cons.Start(ctx); err != nil {
		lg.With(
			sl.Err(err),
		).Error("consumer start")
		return
	}

	var outboxPath ingest.Outbox
	if conf.Outbox.Enabled {
		outboxPath = worker
	}
	ingestion := ingest.NewService(db, conv, outboxPath, conf, lg)
	handler.SetIngestion(ingestion)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		sig := <-stop
		lg.Info("shutting down", slog.String("signal", sig.String()))
		cancel()
		cons.Wait()
		os.Exit(0)
	}()

	// *** blocking start with http server ***
	err = api.New(conf, lg, handler, hub)
	if err != nil {
		lg.Error("server start", sl.Err(err))
		return
	}
	lg.Error("service stopped")
}

// tgAlerter keeps a nil bot from reaching the workers as a non-nil
// interface value.
func tgAlerter(t *bot.TgBot) outbox.Alerter {
	if t == nil {
		return nil
	}
	return t
}
