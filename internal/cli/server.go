package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hackathon-session-service/internal/app"
	"hackathon-session-service/internal/config"
	"hackathon-session-service/internal/domain"
	"hackathon-session-service/internal/infra/memory"
	pginfra "hackathon-session-service/internal/infra/postgres"
	redisinfra "hackathon-session-service/internal/infra/redis"
	transport "hackathon-session-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the hackathon session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	memStore := memory.NewStore()
	var pgStore *pginfra.Store
	if pool != nil {
		pgStore = pginfra.NewStore(pool)
	}

	var progressStore app.ProgressStore = memStore
	if pgStore != nil {
		progressStore = pgStore
	}
	if redisClient != nil {
		var backing app.ProgressStore
		if pgStore != nil {
			backing = pgStore
		}
		progressStore = redisinfra.NewProgressStore(redisClient, backing, redisTTL)
	}

	var sessionStore app.SessionStore = memStore
	if pgStore != nil {
		sessionStore = pgStore
	}
	if redisClient != nil && pgStore == nil {
		sessionStore = redisinfra.NewSessionStore(redisClient, redisTTL)
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(sampleCatalog())
	if pgStore != nil {
		loader = pginfra.NewCatalogLoader(pool)
	}
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalogRepo app.CatalogRepository
	if redisClient != nil {
		catalogRepo = redisinfra.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalogRepo = memory.NewCatalogRepository(loader, catalogTTL)
	}

	sessionID := cfg.Session.ID
	if sessionID == "" {
		sessionID = "hackathon-1"
	}
	duration := config.TTLDuration(cfg.Session.Duration, time.Hour)
	state := app.NewSessionState(sessionStore, sessionID, int(duration/time.Second))
	if err := state.LoadTeams(ctx); err != nil {
		log.Printf("load teams: %v", err)
	}
	if len(state.Snapshot().Teams) == 0 {
		teams := sampleTeams()
		state.SeedTeams(teams)
		for _, team := range teams {
			if err := sessionStore.SaveTeam(ctx, sessionID, team); err != nil {
				log.Printf("seed team %s: %v", team.ID, err)
			}
		}
	}

	trackerCfg := app.TrackerConfig{
		PracticeItemCount:   cfg.Session.PracticeItems,
		HackathonLevelCount: cfg.Session.Levels,
	}
	if trackerCfg.PracticeItemCount == 0 {
		trackerCfg.PracticeItemCount = 10
	}
	if trackerCfg.HackathonLevelCount == 0 {
		trackerCfg.HackathonLevelCount = 7
	}

	wsHandler := transport.NewWSHandler(state, progressStore, catalogRepo, trackerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	downloadsDir := cfg.Downloads.Dir
	if downloadsDir == "" {
		downloadsDir = "downloads"
	}
	mux.Handle("/downloads/", transport.NewDownloadHandler(downloadsDir))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	countdownCtx, stopCountdown := context.WithCancel(ctx)
	defer stopCountdown()
	go state.RunCountdown(countdownCtx, time.Second)

	go func() {
		log.Printf("starting hackathon session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	stopCountdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTeams seeds a demo session when the store has no teams yet.
func sampleTeams() []domain.Team {
	return []domain.Team{
		{ID: "team-crimson", Name: "Crimson Stack"},
		{ID: "team-indigo", Name: "Indigo Pipeline"},
		{ID: "team-jade", Name: "Jade Cluster"},
	}
}

// sampleCatalog provides minimal content; swap the loader for the
// Postgres-backed one in production.
func sampleCatalog() domain.Catalog {
	return domain.Catalog{
		Levels: []domain.Level{
			{ID: 0, Title: "Warmup: broken build", MaxScore: 100},
			{ID: 1, Title: "Data plumbing", MaxScore: 150},
			{ID: 2, Title: "Race to the cache", MaxScore: 200},
			{ID: 3, Title: "Schema shuffle", MaxScore: 200},
			{ID: 4, Title: "Queue quarrel", MaxScore: 250},
			{ID: 5, Title: "Observability hunt", MaxScore: 250},
			{ID: 6, Title: "Final deploy", MaxScore: 300},
		},
		PracticeItems: []domain.PracticeItem{
			{ID: 0, Title: "Interfaces drill"},
			{ID: 1, Title: "Error wrapping drill"},
			{ID: 2, Title: "Context drill"},
			{ID: 3, Title: "Goroutine drill"},
			{ID: 4, Title: "Channel drill"},
			{ID: 5, Title: "Table test drill"},
			{ID: 6, Title: "JSON drill"},
			{ID: 7, Title: "HTTP client drill"},
			{ID: 8, Title: "SQL drill"},
			{ID: 9, Title: "Profiling drill"},
		},
	}
}
