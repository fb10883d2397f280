package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"capsuled/internal/app"
	"capsuled/pkg/config"
	"capsuled/pkg/logger"
	"capsuled/pkg/shutdown"
	"capsuled/pkg/state"
	"capsuled/pkg/store"
)

func main() {
	// build metadata - set via ldflags during build/release
	var (
		version   = "dev"
		commit    = "none"
		buildDate = "unknown"
	)
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	// Config file path: flag wins over CAPSULED_CONFIG.
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	eff, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags win over config and env when explicitly provided.
	if setFlags["addr"] {
		eff.Addr = addrVal
		eff.Source = "flags"
	}
	if setFlags["db"] {
		eff.DBPath = dbVal
		eff.Config.Server.DBPath = dbVal
		eff.Source = "flags"
	}

	logger.InitWithLevel(eff.Config.Logging.Level)
	auditDir := eff.Config.Logging.AuditDir
	if auditDir == "" {
		auditDir = state.AuditDir(eff.DBPath)
	}
	if err := os.MkdirAll(auditDir, 0o700); err == nil {
		if err := logger.AttachAuditFileSink(auditDir); err != nil {
			logger.Warn("audit_sink_attach_failed", "dir", auditDir, "error", err)
		}
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)

	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	if runErr != nil {
		logger.Error("server_exited", "error", runErr)
		os.Exit(1)
	}
	logger.Info("server_stopped", "version", version, "commit", commit, "build_date", buildDate)
}
