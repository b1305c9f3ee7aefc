package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/study-reminders/internal/application"
	"github.com/example/study-reminders/internal/channel"
	"github.com/example/study-reminders/internal/checkin"
	"github.com/example/study-reminders/internal/civiltime"
	"github.com/example/study-reminders/internal/config"
	"github.com/example/study-reminders/internal/engine"
	"github.com/example/study-reminders/internal/mailer"
	"github.com/example/study-reminders/internal/persistence/sqlite"
	"github.com/example/study-reminders/internal/registry"
)

func main() {
	// A local .env is optional; the environment wins either way.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}
	converter := civiltime.NewConverter(location)

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	scheduleRepo := sqlite.NewScheduleRepository(pool)
	notificationRepo := sqlite.NewNotificationRepository(pool)

	var dispatcher engine.Dispatcher
	if cfg.SMTPAddr != "" {
		dispatcher = mailer.NewSMTPDispatcher(cfg.SMTPAddr, cfg.SMTPFrom, nil, logger)
	} else {
		logger.Info("no SMTP endpoint configured, logging reminders instead")
		dispatcher = mailer.NewLogDispatcher(logger)
	}

	idGenerator := uuid.NewString

	reminderEngine := engine.New(scheduleRepo, notificationRepo, registry.New(), dispatcher, converter, engine.Options{
		Offsets:     cfg.ReminderOffsets,
		IDGenerator: idGenerator,
		Logger:      logger,
	})

	scheduleService := application.NewScheduleService(scheduleRepo, reminderEngine, converter, idGenerator, time.Now, logger)

	hub := channel.NewHub(logger)
	coordinator := checkin.NewCoordinator(hub, checkin.Options{
		IDGenerator: idGenerator,
		Logger:      logger,
	})

	if err := reminderEngine.RecoverPendingNotifications(context.Background()); err != nil {
		logger.Error("failed to recover pending reminders", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/live/start", liveStartHandler(scheduleService, coordinator, logger))
	mux.HandleFunc("/live/end", liveEndHandler(coordinator))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}

		coordinator.Shutdown()
		hub.CloseAll()
		reminderEngine.Shutdown()
	}()

	logger.Info("reminder service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// liveStartHandler begins the check-in cadence for a user's live session.
// The schedule's duration sets the cadence.
func liveStartHandler(schedules *application.ScheduleService, coordinator *checkin.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := r.URL.Query().Get("user_id")
		scheduleID := r.URL.Query().Get("schedule_id")
		if userID == "" || scheduleID == "" {
			http.Error(w, "user_id and schedule_id are required", http.StatusBadRequest)
			return
		}

		schedule, err := schedules.GetSchedule(r.Context(), scheduleID)
		if err != nil {
			if errors.Is(err, application.ErrNotFound) {
				http.Error(w, "schedule not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to load schedule for live session", "schedule_id", scheduleID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		coordinator.StartSession(userID, scheduleID, time.Duration(schedule.DurationMinutes)*time.Minute)
		w.WriteHeader(http.StatusNoContent)
	}
}

// liveEndHandler tears down the user's check-in cadence.
func liveEndHandler(coordinator *checkin.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		coordinator.EndSession(userID)
		w.WriteHeader(http.StatusNoContent)
	}
}
