package main

import (
	"flag"
	"log/slog"
	"time"

	"WhatsFlow/ai/gpt"
	"WhatsFlow/bot"
	"WhatsFlow/bot/flow"
	"WhatsFlow/bot/script"
	"WhatsFlow/bot/trigger"
	"WhatsFlow/bot/whatsapp"
	"WhatsFlow/internal/config"
	repository "WhatsFlow/internal/database"
	"WhatsFlow/internal/http-server/api"
	"WhatsFlow/internal/lib/logger"
	"WhatsFlow/internal/lib/sl"
	"WhatsFlow/internal/ws"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	// Initialize Telegram alert channel if enabled
	if conf.Telegram.Enabled {
		tgBot, err := bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", slog.String("error", err.Error()))
		} else {
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelError)
			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram alerts initialized")
		}
	}

	lg.Info("starting whatsflow", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	db, err := repository.NewMongoClient(conf, lg)
	if err != nil {
		lg.With(
			sl.Err(err),
		).Error("mongo client")
	}
	if db == nil {
		lg.Error("mongo storage is required, check config")
		return
	}
	lg.With(
		slog.String("host", conf.Mongo.Host),
		slog.String("port", conf.Mongo.Port),
		slog.String("user", conf.Mongo.User),
		slog.String("database", conf.Mongo.Database),
	).Info("mongo client initialized")

	hub := ws.NewHub(lg)
	go hub.Run()

	waBot := whatsapp.NewWhatsAppBot(
		conf.WhatsApp.AccessToken,
		conf.WhatsApp.VerifyToken,
		conf.WhatsApp.AppSecret,
		conf.WhatsApp.PhoneNumberID,
		conf.WhatsApp.Account,
		lg,
	)
	waBot.SetRecorder(teeRecorder{db, hub})

	scripts := script.NewEngine(time.Duration(conf.Chatbot.ScriptTimeoutSeconds)*time.Second, lg)

	engine := flow.NewEngine(db, db, waBot, scripts, lg)
	engine.SetDocumentCreator(db)
	engine.SetNotifier(hub)

	timeout := time.Duration(conf.Chatbot.SessionTimeoutMinutes) * time.Minute
	lifecycle := flow.NewLifecycle(db, db, waBot, timeout, conf.Chatbot.Enabled, lg)
	lifecycle.SetNotifier(hub)
	lifecycle.Start(time.Duration(conf.Chatbot.SweepIntervalMinutes) * time.Minute)
	defer lifecycle.Stop()

	matcher := trigger.NewMatcher(db, db, scripts, lg)

	dispatcher := bot.NewDispatcher(engine, matcher, db, db, lifecycle, waBot, conf.Chatbot.DefaultReply, lg)
	dispatcher.SetRecorder(teeRecorder{db, hub})
	if conf.OpenAI.Enabled {
		responder := gpt.NewResponder(conf, db, db, lg)
		dispatcher.SetResponder(responder)
		lg.With(
			sl.Secret("openai_key", conf.OpenAI.ApiKey),
			slog.String("model", conf.OpenAI.Model),
		).Info("ai responder initialized")
	}
	waBot.SetHandler(dispatcher)

	// *** blocking start with http server ***
	err = api.New(conf, lg, db, waBot, hub)
	if err != nil {
		lg.Error("server start", sl.Err(err))
		return
	}
	lg.Error("service stopped")
}
