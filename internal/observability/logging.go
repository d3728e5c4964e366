package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// baseWriter remembers InitLogger's chosen sink so EnableOTelBridge can
// layer the OTLP log bridge on top of it instead of replacing it.
var baseWriter io.Writer

// InitLogger initializes zerolog with sane defaults. If logPath is non-empty,
// logs are also written to that file (append mode). If opening the file fails,
// logs fall back to stdout, and an error is printed to stderr.
func InitLogger(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			// When a log file is configured, write only to the file to avoid
			// interfering with interactive UIs (e.g., TUI) that use stdout.
			w = f
		} else {
			// best-effort; continue with stdout
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	baseWriter = w
	log.Logger = log.Output(w).With().Timestamp().Logger()
	// Parse level
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
	// Redirect the standard library logger so ALL logs are captured.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// EnableOTelBridge layers an OTelWriter on top of InitLogger's sink, so
// every log line is both written locally and emitted as an OTLP log
// record through the global OTel logger provider. InitOTel installs only
// tracer and meter providers, so records go nowhere unless a logger
// provider is registered elsewhere. A no-op before InitLogger has run.
func EnableOTelBridge(serviceName string) {
	if baseWriter == nil {
		return
	}
	otelW := NewOTelWriter(serviceName)
	log.Logger = log.Output(zerolog.MultiLevelWriter(baseWriter, otelW)).With().Timestamp().Logger()
}
