package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/fr0stb1rd/pulse.gg-go/pulse"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			fallback := zerolog.New(os.Stderr)
			fallback.Fatal().Err(err).Msg("bad config")
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := newLogger(cfg)
	zerolog.SetGlobalLevel(cfg.LogLevel)

	if *configPath != "" {
		watcher, err := watchConfig(*configPath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("config watch disabled")
		} else {
			defer watcher.Close()
		}
	}

	app := pulse.New().WithLogger(logger)

	app.Use(func(req *pulse.Request, next pulse.NextFunc) error {
		logger.Debug().Str("socket", req.Socket.ID[:8]).Str("event", req.Event).Msg("event")
		return next()
	})

	app.On("@connection", func(req *pulse.Request) error {
		logger.Info().Str("socket", req.Socket.ID).Msg("client connected")
		return nil
	})

	app.On("ping", func(req *pulse.Request) error {
		return req.Reply(map[string]any{"message": "pong"})
	})

	chat := app.Namespace("/chat:")

	chat.On("join", func(req *pulse.Request) error {
		data, _ := req.Data.(map[string]any)
		username, _ := data["username"].(string)
		if username == "" {
			return req.Reply(map[string]any{"error": "username required"})
		}
		req.Set("username", username)
		req.Join("lobby")
		req.Broadcast("user:joined", map[string]any{
			"username": username,
		}, "#lobby")
		return req.Reply(map[string]any{"ok": true})
	})

	chat.On("message", func(req *pulse.Request) error {
		data, _ := req.Data.(map[string]any)
		username, _ := req.Get("username")
		req.Broadcast("message", map[string]any{
			"username": username,
			"message":  data["message"],
		}, "#lobby")
		return nil
	})

	app.On("@disconnect", func(req *pulse.Request) error {
		logger.Info().Str("socket", req.Socket.ID).Msg("client disconnected")
		return nil
	})

	app.On("@error", func(req *pulse.Request) error {
		logger.Error().Interface("detail", req.Data).Msg("handler error")
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(cfg.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		if err := app.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}
}

func newLogger(cfg serverConfig) zerolog.Logger {
	if cfg.Pretty {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		return zerolog.New(output).With().Timestamp().Str("app", "pulse").Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("app", "pulse").Logger()
}

// watchConfig re-reads the config file whenever it changes and applies
// the log level live. The parent directory is watched because editors
// typically replace the file instead of writing it in place.
func watchConfig(path string, logger zerolog.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	clean := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != clean {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := loadConfig(path)
				if err != nil {
					logger.Warn().Err(err).Msg("config reload failed")
					continue
				}
				zerolog.SetGlobalLevel(cfg.LogLevel)
				logger.Info().Stringer("level", cfg.LogLevel).Msg("log level updated")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watcher")
			}
		}
	}()

	return watcher, nil
}
