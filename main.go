package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"playlog/api"
	"playlog/config"
	"playlog/handlers"
	"playlog/services/collection"
	"playlog/services/docstore"
	"playlog/services/media"
	"playlog/services/scheduler"
	"playlog/services/search"
	"playlog/services/sessions"
	"playlog/services/users"
	"playlog/utils"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🎮 playlog backend starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("PLAYLOG_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	if err := cfgManager.EnsureDir(); err != nil {
		log.Fatalf("failed to create config dir: %v", err)
	}
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			slog.SetDefault(slog.New(slog.NewTextHandler(multiWriter, &slog.HandlerOptions{Level: logLevel(settings.Log.Level)})))
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	usersService, err := users.NewService(settings.Storage.Directory)
	if err != nil {
		log.Fatalf("failed to initialise users service: %v", err)
	}
	if pin := usersService.InitialPin(); pin != "" {
		fmt.Printf("🔑 Initial PIN for the default profile: %s\n", pin)
		fmt.Println("📱 Sign in with this PIN and change it from the profile screen.")
	}

	sessionsService := sessions.NewService(settings.Sessions.TTL())

	store, err := docstore.Open(settings.Storage)
	if err != nil {
		log.Fatalf("failed to open collection store: %v", err)
	}
	slog.Info("collection store ready", "backend", settings.Storage.Backend)

	registry := collection.NewRegistry(store)
	stopFollow := registry.Follow(sessionsService)

	httpc := &http.Client{Timeout: time.Duration(settings.Catalog.TimeoutSeconds) * time.Second}
	bridge := search.NewBridge(
		search.NewProviders(settings.Catalog, httpc, settings.Search.MaxResults),
		settings.Search.MaxResults,
		settings.Search.MaxConcurrent,
	)

	mediaService, err := media.NewService(nil, settings.Media)
	if err != nil {
		log.Fatalf("failed to initialise media storage: %v", err)
	}

	// Root context for long-lived views; cancelled on shutdown.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	settingsHandler := handlers.NewSettingsHandler(cfgManager)
	settingsHandler.OnChange = func(next config.Settings) {
		bridge.SetProviders(search.NewProviders(next.Catalog, httpc, next.Search.MaxResults))
	}
	authHandler := handlers.NewAuthHandler(usersService, sessionsService)
	usersHandler := handlers.NewUsersHandler(usersService, mediaService)
	collectionsHandler := handlers.NewCollectionsHandler(registry)
	backupHandler := handlers.NewBackupHandler(registry)
	searchHandler := handlers.NewSearchHandler(bridge)
	liveHandler := handlers.NewLiveHandler(registry, bridge, settings.Search.Debounce())
	liveHandler.BaseContext = rootCtx
	imageHandler := handlers.NewImageHandler(mediaService)

	schedulerService := scheduler.NewService(time.Minute)
	schedulerService.Register(scheduler.SessionSweepTask(sessionsService, 5*time.Minute))
	if err := schedulerService.Start(rootCtx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	tasksHandler := handlers.NewScheduledTasksHandler(schedulerService)

	var r *mux.Router = utils.NewRouter()
	api.Register(
		r,
		settingsHandler,
		authHandler,
		usersHandler,
		collectionsHandler,
		backupHandler,
		searchHandler,
		liveHandler,
		imageHandler,
		tasksHandler,
		sessionsService,
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", addr, "config", configPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("🛑 Shutting down...")

	cancelRoot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	if err := schedulerService.Stop(ctx); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	stopFollow()
	registry.Close()
	if err := store.Close(); err != nil {
		log.Printf("close collection store: %v", err)
	}
	fmt.Println("👋 Bye")
}

func logLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
