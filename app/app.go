package campuslink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"

	"github.com/campuslink/campuslink/core"
)

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *Router
	hub     *core.Hub

	exit chan int

	chatStore     core.ChatStore
	friendStore   core.FriendStore
	settingsStore core.SettingsStore

	chatHandler     *ChatHandler
	friendHandler   *FriendHandler
	settingsHandler *SettingsHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteOptions{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.chatStore = core.NewSQLiteChatStore(app.db.DB)
	app.friendStore = core.NewSQLiteFriendStore(app.db.DB)
	app.settingsStore = core.NewSQLiteSettingsStore(app.db.DB)

	space := core.NewSpace(app.friendStore, app.logger)
	rooms := core.NewCoordinator(app.chatStore, app.logger)
	app.hub = core.NewHub(app.context, &app.wg, app.logger, space, rooms, app.settingsStore)
	app.AddCleanupFunc(func(ctx context.Context) {
		app.hub.Close(5 * time.Second)
	})

	app.chatHandler = NewChatHandler(rooms, app.chatStore)
	app.friendHandler = NewFriendHandler(app.friendStore)
	app.settingsHandler = NewSettingsHandler(app.settingsStore)
	identityMiddleware := IdentityMiddleware(app.config.Auth.Secret)

	app.router = NewRouter(WithRouterLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// The websocket endpoint accepts an optional identity token. Without one
	// the nickname in the join frame is taken at face value.
	wsHandler := func(w http.ResponseWriter, r *http.Request) {
		var verified string
		if token := bearerToken(r); token != "" {
			claims, err := VerifyIdentityToken(token, app.config.Auth.Secret)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			verified = claims.Nickname
		}
		if err := app.hub.Connect(w, r, verified); err != nil {
			app.logger.Error("websocket connect failed", slog.String("err", err.Error()))
		}
	}
	app.router.Router.Get("/ws", wsHandler)
	app.router.Router.Get("/tracking", wsHandler)
	app.router.Router.Get("/chat-ws", wsHandler)

	api := NewRouter(WithRouterLogger(app.logger))

	api.Route("/friends", func(r *Router) {
		r = r.With(identityMiddleware)
		r.Get("/", app.friendHandler.GetFriendsHandler)
		r.Post("/", app.friendHandler.AddFriendHandler)
		r.Delete("/{nickname}", app.friendHandler.RemoveFriendHandler)
	})

	api.Route("/rooms", func(r *Router) {
		r = r.With(identityMiddleware)
		r.Get("/", app.chatHandler.GetMyRoomsHandler)
		r.Get("/{roomKey}/messages", app.chatHandler.GetTranscriptHandler)
		r.Post("/{roomKey}/read", app.chatHandler.MarkReadHandler)
	})

	api.Route("/settings", func(r *Router) {
		r = r.With(identityMiddleware)
		r.Get("/location", app.settingsHandler.GetLocationSettingHandler)
		r.Put("/location", app.settingsHandler.PutLocationSettingHandler)
	})

	app.router.Mount("/api", api.Router)

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			go func(f func(context.Context)) {
				defer wg.Done()
				f(closeCtx)
			}(f)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
