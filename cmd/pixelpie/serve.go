package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pixelpie/api"
	"pixelpie/internal/config"
	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/bot"
	"pixelpie/internal/infrastructure/database"
	"pixelpie/internal/infrastructure/fsm"
	"pixelpie/internal/infrastructure/llama"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/infrastructure/translate"
	"pixelpie/internal/infrastructure/yookassa"
	"pixelpie/internal/monitoring"
	"pixelpie/internal/service"
	"pixelpie/internal/worker"
)

const (
	throttleWindow   = 700 * time.Millisecond
	activeUserWindow = 5 * time.Minute
	updateWorkers    = 32
)

// ServeCmd запускает бота, воркеры и HTTP-сервер до получения сигнала
type ServeCmd struct {
	Debug bool `help:"Логировать запросы к Telegram API."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.EnvFile)
	if err != nil {
		return err
	}

	log := monitoring.NewLogger(monitoring.LoggerOptions{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		Production: !cfg.IsDevMode(),
	})
	log.WithFields(monitoring.Fields{"mode": cfg.Mode, "version": version}).Info("🚀 Запуск PixelPie")

	tp, err := monitoring.InitTracing("pixelpie", cfg.JaegerEndpoint)
	if err != nil {
		log.WithError(err).Warn("Трейсинг не инициализирован")
	}
	if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// База данных
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx, log.WithField("component", "goose")); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Redis опционален: без него сессии и лимиты живут в памяти
	var (
		sessions    fsm.Storage  = fsm.NewMemoryStorage()
		throttle    bot.Throttle = bot.NewMemoryThrottle(throttleWindow, 3)
		redisPinger monitoring.Pinger
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis недоступен, сессии хранятся в памяти")
		} else {
			sessions = fsm.NewRedisStorage(rdb)
			throttle = bot.NewRedisThrottle(rdb, throttleWindow)
			log.WithField("addr", cfg.RedisAddr).Info("Сессии хранятся в Redis")
		}
		redisPinger = monitoring.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	// Telegram
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	botAPI.Debug = c.Debug
	log.WithField("username", botAPI.Self.UserName).Info("Авторизован в Telegram")
	tgBot := bot.NewBot(botAPI, monitoring.NewHTTPClient(60*time.Second), log)

	// Внешние сервисы
	rep := replicate.New(cfg.ReplicateToken, monitoring.NewHTTPClient(60*time.Second))
	yk := yookassa.New(cfg.YooKassaShopID, cfg.YooKassaSecretKey, monitoring.NewHTTPClient(15*time.Second))
	if !yk.Configured() {
		log.Warn("ЮKassa не настроена, оплата работать не будет")
	}
	translator := translate.New(cfg.TranslateAPIKey, monitoring.NewHTTPClient(10*time.Second))
	var improver service.Improver
	if assistant := llama.New(cfg.LlamaAPIURL, cfg.LlamaAPIKey, cfg.LlamaModel, monitoring.NewHTTPClient(30*time.Second)); assistant != nil {
		improver = assistant
	}

	// Репозитории
	users := database.NewUserRepository(db)
	avatars := database.NewAvatarRepository(db)
	tasks := database.NewTaskRepository(db)
	payments := database.NewPaymentRepository(db)
	broadcasts := database.NewBroadcastRepository(db)

	tracker := worker.NewTracker(worker.TrackerConfig{
		Intervals: map[domain.TaskKind]time.Duration{
			domain.TaskKindImage:    cfg.ImagePollInterval,
			domain.TaskKindVideo:    cfg.VideoPollInterval,
			domain.TaskKindTraining: cfg.TrainingPollInterval,
		},
		MaxAttempts: map[domain.TaskKind]int{
			domain.TaskKindImage:    300,
			domain.TaskKindVideo:    400,
			domain.TaskKindTraining: 400,
		},
	}, tasks, rep, log)

	// Сервисы
	credits := service.NewCreditService(users)
	training := service.NewTrainingService(service.TrainingConfig{
		Owner:     cfg.ReplicateOwner,
		Trainer:   cfg.ReplicateTrainer,
		MinPhotos: cfg.MinTrainingPhotos,
		MaxPhotos: cfg.MaxTrainingPhotos,
	}, users, avatars, tasks, rep, tgBot, tracker, tgBot, log)
	generation := service.NewGenerationService(cfg.PhotoCost, credits, avatars, tasks, rep, tracker, tgBot, log)
	video := service.NewVideoService(cfg.ReplicateVideoModel, cfg.VideoCost, credits, tasks, rep, tgBot, tracker, tgBot, log)
	paymentService := service.NewPaymentService(cfg.YooKassaReturnURL, cfg.ReferralBonus, cfg.PaymentTTL, payments, users, credits, yk, tgBot, log)
	broadcastService := service.NewBroadcastService(cfg.BroadcastRate, broadcasts, users, tgBot, log)

	tracker.Register(domain.TaskKindImage, generation)
	tracker.Register(domain.TaskKindVideo, video)
	tracker.Register(domain.TaskKindTraining, training)

	active := monitoring.NewActiveUsersManager(activeUserWindow)
	router := bot.NewRouter(bot.RouterConfig{
		BotUsername: botAPI.Self.UserName,
		Admins:      cfg,
		Workers:     updateWorkers,
	}, tgBot, bot.Services{
		Users:      service.NewUserService(users, cfg.WelcomeBonus),
		Prompts:    service.NewPromptService(translator, improver, log),
		Training:   training,
		Generation: generation,
		Video:      video,
		Payments:   paymentService,
		Broadcasts: broadcastService,
		Admin:      service.NewAdminService(users, avatars, credits, log),
	}, sessions, throttle, active, log)

	server := api.NewServer(cfg.HTTPPort, log)
	server.SetupRoutes(paymentService, monitoring.NewHealthChecker(db, redisPinger))

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if _, err := tracker.Recover(gctx); err != nil {
			log.WithError(err).Error("Не удалось возобновить задачи")
		}
		return tracker.Run(gctx)
	})
	eg.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := botAPI.GetUpdatesChan(u)
		go func() {
			<-gctx.Done()
			botAPI.StopReceivingUpdates()
		}()
		return router.Run(gctx, updates)
	})
	eg.Go(func() error {
		return worker.NewPaymentWorker(paymentService, cfg.PaymentCheckInterval, log).Run(gctx)
	})
	eg.Go(func() error {
		return worker.NewBroadcastWorker(broadcastService, cfg.BroadcastCheckInterval, log).Run(gctx)
	})
	eg.Go(func() error {
		return server.Start(gctx)
	})
	eg.Go(func() error {
		active.Start(gctx)
		return nil
	})

	err = eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Сервис остановлен с ошибкой")
		return err
	}
	log.Info("👋 PixelPie остановлен")
	return nil
}
