package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/config"
	"github.com/stegoshield/stegoshield-api/detector"
	"github.com/stegoshield/stegoshield-api/handlers"
	"github.com/stegoshield/stegoshield-api/mailer"
	"github.com/stegoshield/stegoshield-api/middleware"
	"github.com/stegoshield/stegoshield-api/otp"
	"github.com/stegoshield/stegoshield-api/storage"
)

func init() {
	// Load .env file if not in production environment
	config.LoadDotenv()
}

func main() {
	log := config.Log

	env, err := config.LoadEnvironment()
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	config.ConfigureLogger(env)

	// Initialize database connection
	db, err := config.Connect(env)
	if err != nil {
		log.Fatalf("main: %v", err)
	}

	sessions, err := auth.NewSessions(env.JWTSecret, env.SessionTTL)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	guard, err := middleware.NewSessionGuard(db, sessions, env.SessionCookieName, log)
	if err != nil {
		log.Fatalf("main: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store storage.Store
		local *storage.LocalStore
	)
	if env.UsesCloudinary() {
		store, err = storage.NewCloudinaryStore(env.CloudinaryURL, env.CloudinaryCloudName,
			env.CloudinaryAPIKey, env.CloudinaryAPISecret, "stegoshield")
		log.Info("main: storing uploads in cloudinary")
	} else {
		local, err = storage.NewLocalStore(env.LocalStorageDir, env.PublicBaseURL)
		store = local
		log.WithField("dir", env.LocalStorageDir).Info("main: storing uploads on disk")
	}
	if err != nil {
		log.Fatalf("main: %v", err)
	}

	// OTP store
	otpOpts := otp.Options{TTL: env.OTPTTL, ResendInterval: env.OTPResendInterval}
	var otpStore otp.Store
	if env.RedisURL != "" {
		otpStore, err = otp.NewRedisStore(env.RedisURL, otpOpts)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
	} else {
		mem := otp.NewMemoryStore(otpOpts)
		go mem.Run(ctx, time.Minute)
		otpStore = mem
		log.Warn("main: REDIS_URL not set, OTPs are kept in memory")
	}
	defer otpStore.Close()

	var mail mailer.Mailer = &mailer.LogMailer{Log: log}
	if env.EmailUser != "" {
		mail = mailer.NewSMTPMailer(env.EmailHost, env.EmailPort, env.EmailUser, env.EmailPassword)
	} else {
		log.Warn("main: EMAIL_HOST_USER not set, OTP emails are logged instead of sent")
	}

	// Detector
	detectorOpts := []detector.Option{
		detector.WithLogger(log),
		detector.WithConcurrency(env.DetectorMaxConcurrency),
	}
	if env.DetectorThresholds != "" {
		thresholds, err := detector.LoadThresholds(env.DetectorThresholds)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
		detectorOpts = append(detectorOpts, detector.WithThresholds(thresholds))
	}
	if env.ModelServerURL != "" {
		detectorOpts = append(detectorOpts, detector.WithRemote(detector.NewRemoteClient(env.ModelServerURL, log)))
		log.WithField("url", env.ModelServerURL).Info("main: using remote model server")
	}

	DBHandler := &handlers.DBHandler{
		DB:       db,
		Sessions: sessions,
		Cookies: auth.CookieOptions{
			Name:   env.SessionCookieName,
			Domain: env.Domain,
			Secure: env.CookieSecure,
			TTL:    sessions.TTL(),
		},
		Storage:        store,
		Detector:       detector.NewRegistry(detectorOpts...),
		OTP:            otpStore,
		Mailer:         mail,
		Log:            log,
		OTPTTL:         env.OTPTTL,
		MaxUploadBytes: env.MaxUploadBytes,
	}
	if env.FirebaseProjectID != "" {
		verifier, err := auth.NewFirebaseVerifier(env.FirebaseProjectID)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
		DBHandler.IDTokens = verifier
	} else {
		log.Warn("main: FIREBASE_PROJECT_ID not set, Google sign-in disabled")
	}

	mux := handlers.NewRouter(DBHandler, guard)
	mux.Handle("GET /metrics", promhttp.Handler())
	if local != nil {
		mux.Handle("GET /files/", local.Handler())
	}
	if env.StaticDir != "" {
		mux.Handle("GET /", handlers.Static(env.StaticDir))
	}

	// Configure CORS with specific options
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   env.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(mux)

	handler := middleware.RequestLogger(log)(middleware.Recoverer(log)(corsHandler))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + env.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("main: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main: server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("main: graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
