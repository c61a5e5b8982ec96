package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rocketscienceinc/tictactoe-session/internal/config"
	"github.com/rocketscienceinc/tictactoe-session/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-session/internal/repository"
	"github.com/rocketscienceinc/tictactoe-session/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-session/internal/session"
	"github.com/rocketscienceinc/tictactoe-session/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-session/transport/rest"
	"github.com/rocketscienceinc/tictactoe-session/transport/tcp"
	"github.com/rocketscienceinc/tictactoe-session/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	matchRepo, closeRepo, err := initMatchRepository(ctx, log, conf)
	if err != nil {
		return err
	}
	defer closeRepo()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	archiver := usecase.NewMatchArchiver(logger, matchRepo, conf.Archive.QueueSize)
	sess := session.New(
		logger.With("component", "session"),
		session.Options{
			BroadcastBuffer: conf.Session.BroadcastBuffer,
			RequestQueue:    conf.Session.RequestQueue,
		},
		session.WithMetrics(metrics.New(metrics.WithRegistry(registry))),
		session.WithArchive(archiver),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 5)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			log.Info("Starting " + name)
			if runErr := fn(); runErr != nil {
				log.Error(name+" error", "error", runErr)
				errCh <- fmt.Errorf("%s error: %w", name, runErr)
			}
		}()
	}

	run("session", func() error {
		return sess.Run(ctx)
	})
	run("match archiver", func() error {
		return archiver.Run(ctx)
	})
	run("TCP server", func() error {
		log.Info("TCP server listening", "port", conf.TCPPort)
		return tcp.New(logger, sess).Start(ctx, conf.TCPPort)
	})

	if conf.WSPort != "" {
		run("WebSocket server", func() error {
			log.Info("WebSocket server listening", "port", conf.WSPort)
			return websocket.New(logger, sess, websocket.WithOriginPatterns(conf.WSOriginPatterns...)).Start(ctx, conf.WSPort)
		})
	}

	if conf.HTTPPort != "" {
		run("HTTP server", func() error {
			log.Info("HTTP server listening", "port", conf.HTTPPort)
			return rest.New(logger, sess, archiver, registry).Start(ctx, conf.HTTPPort)
		})
	}

	select {
	case err = <-errCh:
		cancel()
		wg.Wait()
		return err
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		wg.Wait()
		return nil
	}
}

// initMatchRepository - Redis backed when the archive is enabled, a no-op otherwise.
func initMatchRepository(ctx context.Context, log *slog.Logger, conf *config.Config) (repository.MatchRepository, func(), error) {
	if !conf.Archive.Enabled {
		log.Info("Match archive disabled")
		return repository.NewNopMatchRepository(), func() {}, nil
	}

	if conf.Redis.Host == "" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, conf.Redis.GetRedisAddr())
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	closeFn := func() {
		if err := redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}

	return repository.NewMatchRepository(redisStorage), closeFn, nil
}
