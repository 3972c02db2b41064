package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/modahaus/storefront/internal/app"
	"github.com/modahaus/storefront/internal/config"
	"github.com/modahaus/storefront/internal/docstore"
	"github.com/modahaus/storefront/internal/handler"
	"github.com/modahaus/storefront/internal/ordernum"
	"github.com/modahaus/storefront/internal/postgres"
	"github.com/modahaus/storefront/internal/publisher"
	"github.com/modahaus/storefront/internal/repo"
	"github.com/modahaus/storefront/internal/service"
	"github.com/modahaus/storefront/pkg/cache"
	"github.com/modahaus/storefront/pkg/trm"
)

func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())

	deps := service.Deps{
		Numbers:  ordernum.New(conf.Storage.OrderPrefix),
		Settings: conf.ModeSettings,
	}

	if conf.Postgres.Configured() {
		db, err := postgres.New(conf.Postgres)
		panicIfErr("failed to connect to db", err)
		defer db.Close()

		panicIfErr("failed to run migrations", repo.RunMigrations(context.Background(), db))
		logger.Info("postgres connected")

		deps.Repo = repo.NewPostgresRepo(db)
		deps.TxManager = trm.NewManager(db)
	}

	store, err := docstore.New(conf.Storage.DocstoreDir, conf.Storage.ReadOnlyFS)
	panicIfErr("failed to open document store", err)
	deps.Store = store

	orderCache := cache.NewLRU(conf.Cache.Capacity, conf.Cache.TTL)
	deps.Cache = orderCache

	application := app.New(logger, conf)

	if conf.Kafka.Enabled() {
		kafkaPublisher := publisher.NewKafka(logger, conf.Kafka)
		deps.Publisher = kafkaPublisher
		application.SetClosers(kafkaPublisher)
	}

	orderService := service.NewOrderService(logger, deps)
	httpHandler := handler.NewHTTPHandler(logger, orderService)

	application.SetHTTPHandlers(httpHandler)
	application.SetStarters(orderCache)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	panicIfErr("failed to start app", application.Start(ctx))
	<-ctx.Done()
	panicIfErr("failed to stop app", application.Stop())
}

func init() {
	godotenv.Load()
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}
