package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizbot-service/internal/app"
	"quizbot-service/internal/config"
	"quizbot-service/internal/delivery"
	"quizbot-service/internal/domain"
	"quizbot-service/internal/infra/memory"
	pgstore "quizbot-service/internal/infra/postgres"
	redisrepo "quizbot-service/internal/infra/redis"
	"quizbot-service/internal/session"
	transport "quizbot-service/internal/transport/http"
	"quizbot-service/internal/transport/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewRunCmd builds the CLI subcommand that starts the bot.
func NewRunCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath, *port)
		},
	}
}

func runBot(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		token = cfg.Telegram.Token
	}
	if token == "" {
		return fmt.Errorf("telegram token not configured (TELEGRAM_TOKEN or telegram.token)")
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisrepo.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var scores app.ScoreStore = memory.NewScoreStore()
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		scores = pgstore.NewScoreStore(db)
	} else {
		log.Printf("no postgres url configured, scores will not survive restarts")
	}

	registry := session.NewRegistry()
	queue := delivery.NewQueue(config.TTLDuration(cfg.Quiz.DeliveryMaxAge, delivery.DefaultMaxAge))
	hub := transport.NewHub()

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}

	controller := app.NewController(registry, queue, scores, quizRepo, telegram.NewMessenger(api), hub, app.Options{
		ResultDelay:          config.TTLDuration(cfg.Quiz.ResultDelay, 2*time.Second),
		GlobalCompletionGate: cfg.Quiz.CompletionScope == "global",
	})
	bot := telegram.NewBot(api, controller, cfg.Admin.UserIDs, cfg.Quiz.LeaderboardLimit)

	wsHandler := transport.NewWSHandler(hub)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		log.Printf("starting live-updates server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	go bot.Run(runCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides demo content for running without a database.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"wonders": {
			ID:    "wonders",
			Title: "World Wonders",
			Questions: []domain.Question{
				{
					Prompt:  "Which of these is one of the Seven Wonders of the Ancient World?",
					Options: []string{"Great Pyramid of Giza", "Eiffel Tower", "Stonehenge"},
					Correct: "Great Pyramid of Giza",
					Link:    "https://en.wikipedia.org/wiki/Great_Pyramid_of_Giza",
				},
				{
					Prompt:  "In which country is Machu Picchu located?",
					Options: []string{"Chile", "Peru", "Bolivia"},
					Correct: "Peru",
				},
			},
		},
		"capitals": {
			ID:    "capitals",
			Title: "European Capitals",
			Questions: []domain.Question{
				{
					Prompt:  "What is the capital of Portugal?",
					Options: []string{"Porto", "Lisbon", "Madrid"},
					Correct: "Lisbon",
				},
				{
					Prompt:  "What is the capital of Finland?",
					Options: []string{"Oslo", "Stockholm", "Helsinki"},
					Correct: "Helsinki",
				},
				{
					Prompt:  "What is the capital of Austria?",
					Options: []string{"Vienna", "Prague", "Budapest"},
					Correct: "Vienna",
				},
			},
		},
	}
}
