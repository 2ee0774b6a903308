// Package log wires op/go-logging into podd/podctl: syslog when
// available, colored stderr otherwise, with a daemon-wide default level
// plus optional per-object-type overrides so one noisy object kind can
// be turned up without drowning the rest of the log.
package log

import (
	stdlog "log"
	"log/syslog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

var logger = logging.MustGetLogger("pod")

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)
var stderrFormat = logging.MustStringFormatter(
	`%{color}pod ▶ %{message}%{color:reset}`,
)

// moduleForObjectType names the op/go-logging module a given POD
// object_type's traffic logs under, e.g. "pod.object.100" for the
// Format object. Each object type gets its own module so Setup's
// per-module overrides (POD_LOG_MODULES) can single one out.
func moduleForObjectType(objectType uint32) string {
	return "pod.object." + strconv.FormatUint(uint64(objectType), 10)
}

// ForObjectType returns the logger for one POD object_type's traffic,
// registered under its own op/go-logging module. Handlers in
// cmd/podd's registry callbacks use this instead of the bare package
// logger so a single object kind's verbosity can be raised without
// touching the daemon's blanket level. Repeated calls for the same
// object type return the same *logging.Logger.
func ForObjectType(objectType uint32) *logging.Logger {
	module := moduleForObjectType(objectType)
	if l, ok := objectLoggers.Load(module); ok {
		return l.(*logging.Logger)
	}
	l, _ := objectLoggers.LoadOrStore(module, logging.MustGetLogger(module))
	return l.(*logging.Logger)
}

var objectLoggers sync.Map

// Setup installs the package logger as either a syslog or stderr
// backend and returns it for direct use. trySyslog is honored only on
// platforms where the syslog package actually dials a local daemon;
// failure to connect falls back to stderr. defaultLevel applies to
// every module unless POD_LOG_LEVEL overrides it daemon-wide, or
// POD_LOG_MODULES overrides it for one module by name (see
// ForObjectType).
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	var backend logging.Backend
	if trySyslog {
		var err error
		backend, err = logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			logging.SetFormatter(syslogFormat)
			if syslogBackend, ok := backend.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(syslogBackend.Writer)
			}
		} else {
			backend = nil
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	level := defaultLevel
	switch os.Getenv("POD_LOG_LEVEL") {
	case "CRITICAL":
		level = logging.CRITICAL
	case "ERROR":
		level = logging.ERROR
	case "WARNING":
		level = logging.WARNING
	case "NOTICE":
		level = logging.NOTICE
	case "INFO":
		level = logging.INFO
	case "DEBUG":
		level = logging.DEBUG
	}
	leveled.SetLevel(level, "")
	leveled.SetLevel(level, prefix)
	leveled.SetLevel(level, "pod")
	applyModuleOverrides(leveled)

	logging.SetBackend(leveled)
	return logger
}

// applyModuleOverrides parses POD_LOG_MODULES, a comma-separated list
// of "module=LEVEL" pairs (e.g. "pod.object.100=DEBUG"), and sets each
// module's level independently of Setup's blanket default. Malformed
// or unrecognized entries are skipped rather than failing startup —
// a typo'd override shouldn't keep the daemon from logging at all.
func applyModuleOverrides(leveled logging.LeveledBackend) {
	raw := os.Getenv("POD_LOG_MODULES")
	if raw == "" {
		return
	}
	for _, pair := range strings.Split(raw, ",") {
		module, levelName, ok := cut(pair, "=")
		if !ok {
			continue
		}
		level, err := logging.LogLevel(strings.TrimSpace(levelName))
		if err != nil {
			continue
		}
		leveled.SetLevel(level, strings.TrimSpace(module))
	}
}

func cut(s, sep string) (before, after string, found bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// Get returns the package logger without touching backend setup —
// for packages that just want to log and trust main() already called
// Setup.
func Get() *logging.Logger { return logger }
