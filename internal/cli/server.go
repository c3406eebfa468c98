package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/config"
	"daily-quiz-bot/internal/infra/memory"
	pgstore "daily-quiz-bot/internal/infra/postgres"
	redisstore "daily-quiz-bot/internal/infra/redis"
	sqlitestore "daily-quiz-bot/internal/infra/sqlite"
	"daily-quiz-bot/internal/rank"
	"daily-quiz-bot/internal/transport"
	transporthttp "daily-quiz-bot/internal/transport/http"
	"daily-quiz-bot/internal/transport/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the bot and server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends holds the opened persistence clients. users follows the
// precedence Redis, Postgres, SQLite, memory.
type backends struct {
	users   app.UserStore
	redis   *redis.Client
	pool    *pgxpool.Pool
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	rules, err := quizRules(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	questions, err := questionSupplier(cfg, b)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	// The websocket hub goes first so a connected browser wins over the chat.
	hub := transporthttp.NewHub()
	endpoints := []transport.Endpoint{hub}

	var botAPI *tgbotapi.BotAPI
	if cfg.Telegram.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		botAPI.Debug = cfg.Telegram.Debug
		log.Printf("authorized on telegram account %s", botAPI.Self.UserName)
		endpoints = append(endpoints, telegram.NewPresenter(botAPI))
	} else {
		log.Printf("telegram token not configured, serving websocket clients only")
	}

	model := rank.NewModel(rank.DefaultCohort(config.IntOr(cfg.Leaderboard.CohortSize, 30)), rules.Location)
	engine := app.NewEngine(b.users, questions, transport.NewRouter(endpoints...), model, app.WithRules(rules))
	defer engine.Close()

	if n, err := engine.Recover(ctx); err != nil {
		log.Printf("recover sessions: %v", err)
	} else if n > 0 {
		log.Printf("recovering %d active sessions", n)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transporthttp.NewWSHandler(hub, engine).ServeWS)
	transporthttp.NewAPIHandler(engine, model, rules).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if botAPI != nil {
		bot := telegram.NewBot(botAPI, engine, languages(cfg), rules.Categories)
		g.Go(func() error {
			log.Printf("polling telegram updates")
			return bot.Run(gctx)
		})
	}
	return g.Wait()
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
	}

	switch {
	case b.redis != nil:
		log.Printf("user store: redis %s", cfg.Redis.Addr)
		b.users = redisstore.NewUserStore(b.redis)
	case b.pool != nil:
		log.Printf("user store: postgres")
		b.users = pgstore.NewUserStore(b.pool)
	case cfg.SQLite.Path != "":
		store, err := sqlitestore.NewUserStore(cfg.SQLite.Path)
		if err != nil {
			b.close()
			return nil, err
		}
		log.Printf("user store: sqlite %s", cfg.SQLite.Path)
		b.users = store
		b.closers = append(b.closers, func() { _ = store.Close() })
	default:
		log.Printf("user store: memory, progress is lost on restart")
		b.users = memory.NewUserStore()
	}
	return b, nil
}

// questionSupplier loads pools from Postgres when configured, else from the
// catalog directory, and caches them in Redis or in process.
func questionSupplier(cfg config.Config, b *backends) (app.QuestionSupplier, error) {
	var loader memory.PoolLoader
	switch {
	case b.pool != nil:
		loader = pgstore.NewQuestionLoader(b.pool)
	case cfg.Catalog.Dir != "":
		catalog, err := memory.LoadCatalogDir(cfg.Catalog.Dir)
		if err != nil {
			return nil, err
		}
		loader = catalog
	default:
		log.Printf("no question source configured, catalog is empty")
		loader = memory.NewCatalog(nil)
	}

	ttl := config.DurationOr(cfg.Catalog.TTL, 10*time.Minute)
	if b.redis != nil {
		return redisstore.NewQuestionRepository(b.redis, loader, ttl), nil
	}
	return memory.NewQuestionRepository(loader, ttl), nil
}

func quizRules(cfg config.Config) (app.Rules, error) {
	r := app.DefaultRules()
	q := cfg.Quiz
	r.DailyLimit = config.IntOr(q.DailyLimit, r.DailyLimit)
	r.BatchSize = config.IntOr(q.BatchSize, r.BatchSize)
	r.FallbackBatchSize = config.IntOr(q.FallbackBatchSize, r.FallbackBatchSize)
	r.PointsPerCorrect = config.IntOr(q.PointsPerCorrect, r.PointsPerCorrect)
	r.AnswerWindow = config.DurationOr(q.AnswerWindow, r.AnswerWindow)
	r.Grace = config.DurationOr(q.Grace, r.Grace)
	r.FeedbackDelay = config.DurationOr(q.FeedbackDelay, r.FeedbackDelay)
	if q.DefaultLanguage != "" {
		r.DefaultLanguage = q.DefaultLanguage
	}
	if q.DefaultCategory != "" {
		r.DefaultCategory = q.DefaultCategory
	}
	if len(q.Categories) > 0 {
		r.Categories = q.Categories
	}
	loc, err := config.ParseOffset(q.TimezoneOffset)
	if err != nil {
		return r, err
	}
	if loc != nil {
		r.Location = loc
	}
	return r, nil
}

func languages(cfg config.Config) []string {
	if len(cfg.Quiz.Languages) > 0 {
		return cfg.Quiz.Languages
	}
	return []string{"english", "hindi"}
}
