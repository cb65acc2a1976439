package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frudas24/hidbridge/internal/activity"
	"github.com/frudas24/hidbridge/internal/app"
	"github.com/frudas24/hidbridge/internal/command"
	"github.com/frudas24/hidbridge/internal/config"
	"github.com/frudas24/hidbridge/internal/logging"
	"github.com/frudas24/hidbridge/internal/prefs"
	"github.com/frudas24/hidbridge/internal/session"
	"github.com/frudas24/hidbridge/internal/transport"
	"github.com/frudas24/hidbridge/internal/webrtc"
	"github.com/kataras/golog"
)

const shutdownTimeout = 5 * time.Second

// run wires the application and blocks until shutdown.
func run(debug bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logger := logging.New(level, nil)
	webrtc.SetDebugLogging(debug)
	logger.Debugf("debug: enabled")
	logStartup(logger, cfg)

	saved, err := prefs.Load(cfg.PrefsPath)
	if err != nil {
		logger.Warnf("prefs: %v, using defaults", err)
		saved = prefs.Default()
	}

	sess := session.New(cfg.UIPassword, cfg.PasswordMode)
	sensitivity := cfg.Sensitivity
	if fileExists(cfg.PrefsPath) {
		sensitivity = saved.Sensitivity
	}
	sess.SetSensitivity(sensitivity)

	executor, err := newExecutor(cfg, logger)
	if err != nil {
		return err
	}

	events := activity.New(activity.DefaultCapacity)
	emitter := command.NewEmitter(executor, command.Options{
		Timeout:  cfg.ExecutorTimeout,
		Logger:   logger.Child("[emit]"),
		OnResult: events.Record,
	})

	peers, err := webrtc.NewFactory(webrtc.Options{ICEServers: cfg.ICEServers})
	if err != nil {
		return err
	}

	appInstance, err := app.New(cfg, app.Deps{
		Session:  sess,
		Sink:     emitter,
		Executor: executor,
		Activity: events,
		Peers:    peers,
		Prefs:    saved,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	appInstance.RegisterRoutes(mux)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Infof("shutdown: signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: http: %v", err)
	}
	if err := appInstance.Stop(shutdownCtx); err != nil {
		logger.Warnf("shutdown: pages: %v", err)
	}
	return emitter.Close(shutdownCtx)
}

// newExecutor returns the HTTP executor client, or a log-only executor when
// no URL is configured.
func newExecutor(cfg config.Config, logger *golog.Logger) (transport.Executor, error) {
	if cfg.ExecutorURL == "" {
		logger.Warnf("executor: EXECUTOR_URL not set, commands are only logged")
		return transport.Dry{Log: logger.Child("[dry]")}, nil
	}
	client, err := transport.NewClient(transport.Config{
		BaseURL:  cfg.ExecutorURL,
		User:     cfg.ExecutorUser,
		Password: cfg.ExecutorPass,
		Timeout:  cfg.ExecutorTimeout,
		Logger:   logger.Child("[executor]"),
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("executor: %s (timeout %s)", cfg.ExecutorURL, cfg.ExecutorTimeout)
	return client, nil
}

// logStartup prints startup checks and connection info.
func logStartup(logger *golog.Logger, cfg config.Config) {
	logger.Infof("hidbridge starting")
	logEnvStatus(logger, cfg)
	logListenStatus(logger, cfg.ListenAddr)
}

// logEnvStatus reports whether a .env file was found and required values are set.
func logEnvStatus(logger *golog.Logger, cfg config.Config) {
	envPath := filepath.Join(cfg.DataDir, ".env")
	if fileExists(envPath) {
		logger.Infof("env check: ok (%s)", envPath)
	} else {
		logger.Infof("env check: missing (%s)", envPath)
	}
	if cfg.PasswordMode {
		logger.Infof("env UI_PASSWORD: set")
	} else {
		logger.Warnf("env PASSWORD_MODE: disabled (dev mode)")
	}
}

// logListenStatus reports the listen address and a local URL helper.
func logListenStatus(logger *golog.Logger, addr string) {
	logger.Infof("listen addr: %s", addr)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	logger.Infof("local url: http://%s", net.JoinHostPort(host, port))
}

// fileExists reports whether a path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
