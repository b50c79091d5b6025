package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/auth"
	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/config"
	"github.com/parium/parium-api/internal/database"
	"github.com/parium/parium-api/internal/handlers"
	"github.com/parium/parium-api/internal/location"
	"github.com/parium/parium-api/internal/logging"
	"github.com/parium/parium-api/internal/media"
	"github.com/parium/parium-api/internal/metrics"
	"github.com/parium/parium-api/internal/models"
	"github.com/parium/parium-api/internal/queue"
	"github.com/parium/parium-api/internal/services"
	"github.com/parium/parium-api/internal/store"
	"github.com/parium/parium-api/internal/supabase"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.SupabaseEnabled() {
		log.Fatal("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Database
	db, err := database.Connect(cfg.DatabaseURL, logging.Component(log, "database"))
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	st := store.New(db)

	// 3. Cache and offline queue, on Redis when configured
	var (
		backend cache.Backend = cache.NewMemoryBackend(cfg.CacheMemorySize, cfg.CacheRetention)
		qstore  queue.Store   = queue.NewMemoryStore()
	)
	if cfg.RedisURL != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using in-memory cache and queue")
		} else {
			defer rdb.Close()
			backend = cache.NewRedisBackend(rdb, "parium:cache:")
			qstore = queue.NewRedisStore(rdb, "parium:outbox")
		}
	}
	cc := services.CacheConfig{
		Backend: backend,
		Options: cache.Options{
			StaleAfter: cfg.CacheStaleAfter,
			Retention:  cfg.CacheRetention,
			Observer:   metrics.CacheObserver{},
			Logger:     logging.Component(log, "cache"),
		},
	}

	// 4. Supabase storage, signed URLs and postal codes
	sb, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, ServiceKey: cfg.SupabaseServiceKey, MaxRetries: 3})
	if err != nil {
		log.WithError(err).Fatal("supabase client")
	}
	signedURLs, err := media.NewSignedURLs(sb, media.Options{TTL: cfg.SignedURLTTL, RefreshMargin: cfg.SignedURLSkew})
	if err != nil {
		log.WithError(err).Fatal("signed urls")
	}
	resolver := location.NewResolver(
		location.NewHTTPProvider(cfg.PostalCodeAPI, &http.Client{Timeout: 5 * time.Second}),
		location.ResolverOptions{Logger: logging.Component(log, "location")},
	)

	// 5. Outbound channels: Gmail and Web Push
	gmailService, err := auth.NewGmailService(ctx, cfg.GmailCredentialsFile, cfg.GmailTokenFile, logging.Component(log, "gmail"))
	if err != nil {
		entry := log.WithError(err)
		if errors.Is(err, auth.ErrGmailNotConfigured) {
			entry = log.WithField("credentials", cfg.GmailCredentialsFile)
		}
		entry.Warn("gmail unavailable, emails are only logged")
		gmailService = nil
	}
	emailService := services.NewEmailService(gmailService, cfg.MailFrom, st, logging.Component(log, "email"))
	pushService := services.NewPushService(st, services.VAPIDKeys{
		Public:  cfg.VAPIDPublicKey,
		Private: cfg.VAPIDPrivateKey,
		Subject: cfg.VAPIDSubject,
	}, &http.Client{Timeout: 10 * time.Second}, logging.Component(log, "push"))
	if !pushService.Enabled() {
		log.Warn("VAPID keys missing, push notifications disabled")
	}

	llmService, err := services.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.WithError(err).Fatal("llm")
	}

	// 6. Domain services
	var messageService *services.MessageService
	outbox := queue.New(qstore, queue.Config{
		MaxAttempts: cfg.QueueMaxAttempts,
		Logger:      logging.Component(log, "queue"),
		Observer:    metrics.QueueObserver{},
		OnDrop:      func(item queue.Item, err error) { messageService.Dropped(item, err) },
	})
	messageService = services.NewMessageService(st, outbox, pushService, logging.Component(log, "messages"))

	jobService := services.NewJobService(st, resolver, cc, logging.Component(log, "jobs"))
	savedService := services.NewSavedJobService(st, cc, logging.Component(log, "saved"))
	applicationService := services.NewApplicationService(st, pushService, emailService, cc, logging.Component(log, "applications"))
	matcherService := services.NewMatcherService(st, st, emailService, logging.Component(log, "matcher"))
	teamService := services.NewTeamService(st, emailService, cc, logging.Component(log, "team"))
	newsService := services.NewNewsService(st, cfg.NewsFeeds, cc, logging.Component(log, "news"))
	dashboardService := services.NewDashboardService(messageService, applicationService, matcherService, cc)
	mediaService := services.NewMediaService(signedURLs, st, cfg.CVBucket, cfg.MediaBucket)
	storageService := services.NewStorageService(sb, st, signedURLs, []string{cfg.CVBucket, cfg.MediaBucket}, logging.Component(log, "storage"))

	// 7. Background workers
	go outbox.Run(ctx, cfg.QueueFlushInterval, messageService.Deliver)

	listener := supabase.NewListener(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.RealtimeTables, logging.Component(log, "realtime"))
	listener.On("team_members", func(ch supabase.Change) {
		companyID := ch.Field("company_id")
		if companyID == "" {
			// old_record without REPLICA IDENTITY FULL only has the key
			log.WithField("type", ch.Type).Warn("team change without company_id, cache left to go stale")
			return
		}
		teamService.InvalidateCompany(ctx, companyID)
	})
	listener.On("messages", func(ch supabase.Change) {
		if ch.Type != "INSERT" {
			return
		}
		messageService.NotifyRecipient(ctx, models.Message{
			ConversationID: ch.Field("conversation_id"),
			SenderID:       ch.Field("sender_id"),
			RecipientID:    ch.Field("recipient_id"),
			Body:           ch.Field("body"),
		})
	})
	listener.On("hr_news_items", func(supabase.Change) {
		newsService.Invalidate(ctx)
	})
	go listener.Run(ctx)

	scheduler := services.NewScheduler(ctx, logging.Component(log, "scheduler"))
	for _, task := range services.DefaultTasks(newsService, matcherService, storageService) {
		if err := scheduler.Add(task); err != nil {
			log.WithError(err).WithField("task", task.Name).Fatal("schedule task")
		}
	}
	scheduler.Start()

	// 8. Router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware(), handlers.RequestLogger(logging.Component(log, "http")))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", handlers.DeviceHeader}
	r.Use(cors.New(corsConfig))

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	handlers.Register(r, handlers.Routes{
		Verifier:     auth.NewVerifier(cfg.SupabaseJWTSecret),
		IsAdmin:      cfg.IsAdmin,
		RateLimiter:  handlers.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logging.Component(log, "ratelimit")),
		Jobs:         handlers.NewJobHandler(llmService, jobService, applicationService),
		Saved:        handlers.NewSavedJobHandler(savedService, matcherService),
		Applications: handlers.NewApplicationHandler(applicationService),
		Messages:     handlers.NewMessageHandler(messageService),
		Team:         handlers.NewTeamHandler(teamService),
		Feed: &handlers.FeedHandler{
			News:      newsService,
			Dashboard: dashboardService,
			Locations: resolver,
			Media:     mediaService,
			Push:      pushService,
		},
		Admin: handlers.NewAdminHandler(storageService),
	})

	// 9. Serve until signalled
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	scheduler.Stop()
}
