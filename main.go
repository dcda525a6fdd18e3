// Command sdgateway serves txt2img, img2img and upscale requests from a
// painting plugin against a Stable Diffusion webui.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sdgateway/core"
	"sdgateway/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Use fmt here since logger isn't initialized yet
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	if handled, err := handleServiceCommand(os.Args); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	os.Exit(runForeground())
}

// runForeground runs the gateway until SIGINT/SIGTERM and returns the exit code.
func runForeground() int {
	a, code := bootstrap(true)
	if a == nil {
		return code
	}

	if err := a.run(); err != nil {
		a.logger.Error("gateway stopped with error", zap.Error(err))
		return core.ExitCodeError
	}

	code = exitCodeFor(a.manager.Signal())
	if core.IsSignalExit(code) {
		a.logger.Info("Goodbye!", zap.Int("exit_code", code), zap.String("reason", core.ExitCodeName(code)))
	} else {
		a.logger.Info("Goodbye!")
	}
	return code
}

// exitCodeFor maps the signal that stopped a clean run to its exit code.
func exitCodeFor(sig os.Signal) int {
	switch sig {
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeSuccess
	}
}

// bootstrap loads configuration, creates the logger, runs preflight checks
// and wires the application. On failure it returns a nil app and the exit
// code to use.
func bootstrap(showPreflight bool) (*app, int) {
	cfg, err := core.LoadConfig()
	if err != nil {
		printConfigError(err)
		return nil, core.ExitCodeError
	}

	logger, err := logging.NewLogger(cfg.DevMode, cfg.LogFile,
		logging.WithLevel(logging.ParseLogLevelString(cfg.LogLevel, defaultLevel(cfg.DevMode))))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, core.ExitCodeError
	}

	logger.Info("configuration loaded",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr()),
		zap.String("profile", cfg.ProfilePath),
		zap.String("engine_url", cfg.EngineURL),
		zap.Bool("engine_auth", cfg.EngineAuth != ""),
		zap.Duration("engine_timeout", cfg.EngineTimeout),
		zap.String("history_db", cfg.HistoryDB),
		zap.Duration("history_retention", cfg.HistoryRetention),
		zap.Float64("rate_limit_rps", cfg.RateLimitRPS),
		zap.Bool("metrics", cfg.MetricsEnabled),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	result := runPreflight(cfg, showPreflight)
	if !result.Success {
		for _, step := range result.Steps {
			if step.Status == core.StepFailed {
				logger.Error("preflight check failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error))
			}
		}
		_ = logger.Sync()
		return nil, core.ExitCodeError
	}
	for _, step := range result.Steps {
		if step.Status == core.StepWarning {
			logger.Warn("preflight warning",
				zap.String("step", step.Name),
				zap.Error(step.Error))
		}
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to start gateway", zap.Error(err))
		_ = logger.Sync()
		return nil, core.ExitCodeError
	}
	return a, core.ExitCodeSuccess
}

func defaultLevel(dev bool) zapcore.Level {
	if dev {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func printConfigError(err error) {
	if cfgErr, ok := core.IsConfigError(err); ok {
		fmt.Fprintf(os.Stderr, "Configuration error [%s]: %s\n", cfgErr.Code, cfgErr.Message)
		if cfgErr.Action != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", cfgErr.Action)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
}
