// Command dpm-controller schedules relays and evaluates sensor-triggered
// tasks on the DPM power-management board.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/config"
	"github.com/ValorenceCLE/dpm-controller/internal/control"
	"github.com/ValorenceCLE/dpm-controller/internal/gpio"
	"github.com/ValorenceCLE/dpm-controller/internal/metrics"
	"github.com/ValorenceCLE/dpm-controller/internal/mqtt"
	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/sensor"
	"github.com/ValorenceCLE/dpm-controller/internal/status"
	"github.com/ValorenceCLE/dpm-controller/internal/task"
	"github.com/ValorenceCLE/dpm-controller/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/dpm/config.yml", "Path to YAML configuration")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config, empty keeps config)")
	tick := flag.Duration("tick", 0, "Control tick interval (overrides config)")

	flag.Parse()

	if err := run(*configPath, *broker, *httpAddr, *tick); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, brokerFlag, httpFlag string, tickFlag time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if brokerFlag != "" {
		cfg.MQTT.Broker = brokerFlag
	}
	if httpFlag != "" {
		cfg.HTTP.Addr = httpFlag
	}
	if tickFlag > 0 {
		cfg.Control.TickInterval = tickFlag
	}

	logger := newLogger(cfg.Log)

	registry, tasks, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	metrics.Register()

	driver, err := gpio.NewRealDriver(registry.All())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer driver.Close()

	machine := relay.NewMachine(driver)

	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, clientID(cfg, "ctrl"), logger)
	if err != nil {
		return fmt.Errorf("init mqtt publisher: %w", err)
	}
	defer publisher.Close()

	source, err := sensor.NewMQTTSource(cfg.MQTT.Broker, cfg.MQTT.ReadingsTopic, clientID(cfg, "readings"), logger)
	if err != nil {
		return fmt.Errorf("init sensor source: %w", err)
	}
	defer source.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		SystemName: cfg.General.SystemName,
		SystemID:   cfg.General.SystemID,
		TickMs:     cfg.Control.TickInterval.Milliseconds(),
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
		ConfigPath: configPath,
	})

	rebooter := &systemRebooter{logger: logger}
	bundle := control.NewBundle(registry, tasks, machine, rebooter, logger)
	loop := control.New(bundle, machine, source, publisher, tracker, logger)

	publishSystem(publisher, tracker, logger, "STARTUP", "")

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, loop)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
	}

	logger.Info("started",
		"system", cfg.General.SystemName,
		"tick", cfg.Control.TickInterval,
		"broker", cfg.MQTT.Broker,
		"relays", registry.Len(),
		"tasks", len(tasks))

	ticker := time.NewTicker(cfg.Control.TickInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for s := range sigCh {
			if s == syscall.SIGHUP {
				reload(ctx, configPath, driver, machine, rebooter, logger, loop)
				continue
			}
			logger.Info("received signal, shutting down", "signal", s)
			publishSystem(publisher, tracker, logger, "SHUTDOWN", signalName(s))
			cancel()
			return
		}
	}()

	return loop.Run(ctx, ticker.C)
}

// reload loads and validates the configuration again and swaps the relay and
// task set into the running loop. A config that fails validation is rejected
// whole and the running bundle stays in effect.
func reload(ctx context.Context, configPath string, driver gpio.Driver, machine *relay.Machine, rebooter task.Rebooter, logger *slog.Logger, loop *control.Loop) {
	logger.Info("reloading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("reload rejected", "error", err)
		metrics.IncReload(metrics.ResultRejected)
		return
	}
	registry, tasks, err := cfg.Build()
	if err != nil {
		logger.Error("reload rejected", "error", err)
		metrics.IncReload(metrics.ResultRejected)
		return
	}
	if err := driver.Reconfigure(registry.All()); err != nil {
		logger.Error("reload rejected", "error", err)
		metrics.IncReload(metrics.ResultRejected)
		return
	}

	bundle := control.NewBundle(registry, tasks, machine, rebooter, logger)
	if err := loop.Reload(ctx, bundle); err != nil {
		logger.Error("reload not delivered", "error", err)
	}
}

func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, logger *slog.Logger, event, reason string) {
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  time.Now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		logger.Warn("system event publish failed", "event", event, "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func clientID(cfg *config.Config, suffix string) string {
	id := cfg.General.SystemID
	if id == "" {
		id = "dpm"
	}
	return id + "-" + suffix
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// rebootDelay gives the reboot task's telemetry and logs time to flush.
const rebootDelay = 2 * time.Second

// systemRebooter reboots the host via the reboot binary. The call returns
// immediately; the reboot happens after a short delay.
type systemRebooter struct {
	logger *slog.Logger
}

func (r *systemRebooter) Reboot(reason string) {
	r.logger.Warn("system reboot requested", "reason", reason)
	go func() {
		time.Sleep(rebootDelay)
		if err := exec.Command("/sbin/reboot").Run(); err != nil {
			r.logger.Error("reboot command failed", "error", err)
		}
	}()
}
