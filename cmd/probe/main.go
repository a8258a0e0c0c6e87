// cmd/probe/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-probe/internal/config"
	"github.com/tamzrod/modbus-probe/internal/diag"
	"github.com/tamzrod/modbus-probe/internal/poller"
	"github.com/tamzrod/modbus-probe/internal/recorder"
	"github.com/tamzrod/modbus-probe/internal/registry"
	mbclient "github.com/tamzrod/modbus-probe/internal/registry/modbus"
	"github.com/tamzrod/modbus-probe/internal/trace"
)

func main() {
	if len(os.Args) < 2 {
		os.Stderr.WriteString("usage: probe <config.yaml>\n")
		os.Exit(2)
	}
	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal("config load failed", err)
	}
	if err := config.Validate(cfg); err != nil {
		fatal("config validation failed", err)
	}
	config.Normalize(cfg)

	log := buildLogger(cfg.Probe.LogLevel)
	log.Info().Str("config", cfgPath).Msg("probe starting")

	// --------------------
	// Registry + sessions
	// --------------------

	reg := registry.New(mbclient.New, log)

	logSerialPorts(log, cfg)

	for _, c := range cfg.Probe.Connections {
		if err := reg.AddConnection(registry.BuildProfile(c)); err != nil {
			fatal("connection setup failed", err)
		}
	}

	var autostart []string
	for _, s := range cfg.Probe.Sessions {
		if err := reg.AddSession(registry.BuildSession(s)); err != nil {
			fatal("session setup failed", err)
		}
		if s.AutoStart {
			autostart = append(autostart, s.Name)
		}
	}

	// --------------------
	// Trace store + scheduler
	// --------------------

	store := trace.NewStore(cfg.Probe.TraceCapacity)

	sched := poller.New(poller.Config{
		Tick: time.Duration(cfg.Probe.PollTickMs) * time.Millisecond,
	}, reg, store, log)

	sched.SubscribeErrors(func(res poller.PollResult) {
		log.Warn().
			Str("session", res.SessionName).
			Str("status", string(res.Status)).
			Str("error", res.ErrorMessage).
			Msg("poll error")
	})

	// ---- event recorder (optional) ----
	if path := cfg.Probe.Recorder.Path; path != "" {
		rec, err := recorder.Open(path, log)
		if err != nil {
			fatal("recorder open failed", err)
		}
		defer rec.Close()
		sched.Subscribe(rec.Record)
		log.Info().Str("path", path).Msg("event recorder enabled")
	}

	for _, name := range autostart {
		if err := reg.StartSession(name); err != nil {
			fatal("session start failed", err)
		}
		log.Info().Str("session", name).Msg("session autostarted")
	}

	sched.Start()

	// ---- periodic diagnostics (optional) ----
	stopDiag := make(chan struct{})
	if ms := cfg.Probe.Diagnostics.IntervalMs; ms > 0 {
		go runDiagnostics(log, store, time.Duration(ms)*time.Millisecond, stopDiag)
	}

	// --------------------
	// Wait for shutdown
	// --------------------

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("shutting down")

	close(stopDiag)
	sched.Stop()
	for _, name := range reg.ConnectionNames() {
		reg.Disconnect(name)
	}
}

// runDiagnostics analyzes the trace backlog on a fixed interval and logs
// findings at a level matching their severity.
func runDiagnostics(log zerolog.Logger, store *trace.Store, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			findings := diag.Analyze(store)
			diag.SortBySeverity(findings)
			for _, f := range findings {
				ev := log.Info()
				switch f.Severity {
				case diag.Warning:
					ev = log.Warn()
				case diag.Error:
					ev = log.Error()
				}
				ev.Str("category", f.Category).Str("details", f.Details).Msg(f.Message)
			}
		}
	}
}

// logSerialPorts lists the host's serial devices when any serial connection
// is configured, so a wrong device path is obvious from the startup log.
func logSerialPorts(log zerolog.Logger, cfg *config.Config) {
	for _, c := range cfg.Probe.Connections {
		if c.Kind != "serial" {
			continue
		}
		ports, err := registry.ListSerialPorts()
		if err != nil {
			log.Warn().Err(err).Msg("serial port enumeration failed")
			return
		}
		log.Info().Strs("ports", ports).Msg("serial ports on host")
		return
	}
}

func buildLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func fatal(msg string, err error) {
	l := zerolog.New(os.Stderr)
	l.Error().Err(err).Msg(msg)
	os.Exit(1)
}
