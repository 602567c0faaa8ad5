package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"thoughtswap/internal/api"
	"thoughtswap/internal/collector"
	"thoughtswap/internal/config"
	"thoughtswap/internal/database"
	"thoughtswap/internal/dispatch"
	"thoughtswap/internal/hub"
	"thoughtswap/internal/session"
	"thoughtswap/internal/websocket"

	pkgdatabase "thoughtswap/pkg/database"
)

// Application coordinates all system components. Initialization follows
// dependency order: Database -> Session -> Registry -> Collector ->
// Dispatcher -> Hub -> API -> HTTP.
type Application struct {
	config     *config.Config
	store      *database.Manager
	sessions   *session.Manager
	registry   *websocket.Registry
	responses  *collector.Collector
	dispatcher *dispatch.Dispatcher
	commandHub *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application with all components wired.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	store, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(store.GetDB())
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	sessions := session.NewManager(store)
	if err := sessions.Rehydrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to restore session state: %w", err)
	}

	registry := websocket.NewRegistry()
	responses := collector.New(sessions)

	// Rooms restored to PROMPT_LIVE need their collected responses back too,
	// or the restored prompt would reject every submission and a swap over
	// pre-restart thoughts would come up empty. The store holds the record;
	// replay it into the collector.
	for code, prompt := range sessions.PromptLiveRooms() {
		responses.Reset(code, prompt.ID)

		thoughts, err := store.ListThoughts(context.Background(), prompt.ID)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to reload thoughts for prompt %d: %w", prompt.ID, err)
		}
		for _, thought := range thoughts {
			if _, err := responses.Submit(code, thought.Author, thought.Content); err != nil {
				log.Printf("Failed to restore thought: room=%s author=%s err=%v", code, thought.Author, err)
			}
		}
		if len(thoughts) > 0 {
			log.Printf("Restored %d thoughts: room=%s prompt=%d", len(thoughts), code, prompt.ID)
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dispatcher := dispatch.NewDispatcher(registry, sessions, responses, store, rng)

	commandHub := hub.NewHub(dispatcher)

	apiServer := api.NewServer(store, registry)
	wsHandler := websocket.NewHandler(registry, commandHub)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		sessions:   sessions,
		registry:   registry,
		responses:  responses,
		dispatcher: dispatcher,
		commandHub: commandHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution: hub first so commands are processed,
// then the HTTP server accepts connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting ThoughtSwap application on %s", app.httpServer.Addr)

	if err := app.commandHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start command hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.commandHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("ThoughtSwap application started successfully")
		return nil
	case <-ctx.Done():
		_ = app.commandHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP -> Hub -> Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down ThoughtSwap application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.commandHub.Stop(); err != nil {
		log.Printf("Command hub shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("ThoughtSwap application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
