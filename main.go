package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"shortstacks/config"
	"shortstacks/controllers"
	"shortstacks/database"
	"shortstacks/database/seeders"
	"shortstacks/handlers"
	"shortstacks/middleware"
	"shortstacks/routes"
	"shortstacks/services/activity"
	"shortstacks/services/banking"
	"shortstacks/services/billing"
	"shortstacks/services/classroom"
	"shortstacks/services/health"
	"shortstacks/services/lessons"
	"shortstacks/services/notifications"
	"shortstacks/services/scheduler"
	"shortstacks/services/store"
	"shortstacks/services/users"
	"shortstacks/services/websocket"
	"shortstacks/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close(db)

	rdb := database.ConnectRedis(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	if err := seeders.SeedAll(ctx, db, cfg.AdminUsername, cfg.AdminPassword, cfg.IsDevelopment()); err != nil {
		logrus.WithError(err).Fatal("Failed to seed database")
	}

	var objects *storage.S3Store
	if cfg.S3BucketName != "" {
		objects, err = storage.NewS3Store(ctx, cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			logrus.WithError(err).Warn("S3 storage disabled")
		}
	}

	// WebSocket hub first so notifications can fan out to it
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	lineService, err := notifications.NewLineMessagingService(cfg.LineChannelSecret, cfg.LineChannelToken)
	if err != nil {
		logrus.WithError(err).Warn("LINE channel disabled")
	}
	var linePusher notifications.LinePusher
	var lineBot *linebot.Client
	if lineService != nil {
		linePusher = lineService
		lineBot = lineService.Bot
	}

	notifier := notifications.NewService(db, rdb, cfg.UseRedisNotifications && rdb != nil, wsHub, linePusher)
	if cfg.UseRedisNotifications && rdb != nil {
		go notifier.Run(ctx)
	}

	// nil *S3Store must not become a non-nil interface
	var statementStore banking.ObjectStore
	var archiveStore activity.ObjectStore
	if objects != nil {
		statementStore = objects
		archiveStore = objects
	}

	loc := cfg.Location()
	clock := func() time.Time { return time.Now().In(loc) }

	userService := users.NewService(db)
	classService := classroom.NewService(db)
	billService := billing.NewService(db, notifier).WithClock(clock)
	bankService := banking.NewService(db, notifier, statementStore).WithClock(clock)
	storeService := store.NewService(db, notifier)
	lessonService := lessons.NewService(db, notifier).WithClock(clock)
	recorder := activity.NewRecorder(db, rdb, archiveStore)
	linker := notifications.NewLineLinker(rdb, userService)
	auth := middleware.NewAuth(cfg.JWTSecret, cfg.JWTExpiresIn, db, rdb)

	var archiveJob func(ctx context.Context) error
	if archiveStore != nil {
		archiveJob = func(ctx context.Context) error {
			_, err := recorder.Archive(ctx, 30)
			return err
		}
	}
	jobs := scheduler.New(loc, billService, bankService, recorder, archiveJob)
	if err := jobs.Register(); err != nil {
		logrus.WithError(err).Fatal("Failed to register scheduled jobs")
	}
	jobs.Start(ctx)

	healthService := health.NewService(db, rdb, wsHub, health.Options{
		Version:       version,
		Environment:   cfg.AppEnv,
		RedisRequired: cfg.UseRedisNotifications,
		StorageReady:  objects != nil,
		SkipMigrate:   cfg.SkipMigrate,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
		AppName:      "ShortStacks API " + version,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware(recorder))

	var lineWebhook *handlers.LineWebhookHandler
	if lineBot != nil {
		lineWebhook = handlers.NewLineWebhookHandler(cfg.LineChannelSecret, lineBot, linker)
	}
	var lineLinker *notifications.LineLinker
	if lineBot != nil {
		lineLinker = linker
	}

	routes.SetupRoutes(app, auth, routes.Controllers{
		Auth:          controllers.NewAuthController(auth, userService, lineLinker, recorder),
		Admin:         controllers.NewAdminController(userService, recorder),
		Classes:       controllers.NewClassController(classService, cfg.MaxFileSize),
		Bills:         controllers.NewBillController(billService),
		Accounts:      controllers.NewAccountController(bankService, loc),
		Store:         controllers.NewStoreController(storeService),
		Lessons:       controllers.NewLessonController(lessonService),
		Notifications: controllers.NewNotificationController(notifier),
		WebSocket:     controllers.NewWebSocketController(wsHub),
		Health:        controllers.NewHealthController(healthService),
		LineWebhook:   lineWebhook,
	})
	app.Use(routes.NotFound)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	logrus.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.AppEnv, "version": version}).Info("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}
	jobs.Stop()
	notifier.Wait()
	if n, err := recorder.Flush(context.Background()); err != nil {
		logrus.WithError(err).Warn("Final activity log flush failed")
	} else if n > 0 {
		logrus.WithField("flushed", n).Info("Final activity log flush")
	}
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.IsDevelopment() || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		logrus.WithError(err).Warn("Could not create log directory, logging to stdout")
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.WithError(err).Warn("Could not open log file, logging to stdout")
		return
	}
	logrus.SetOutput(file)
}
