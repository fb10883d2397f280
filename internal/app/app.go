// Package app wires the capsule engine together: config, store,
// encryption, cleanup scheduler, sharing outbox, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"capsuled/internal/cleanup"
	"capsuled/pkg/banner"
	"capsuled/pkg/config"
	"capsuled/pkg/security"
	"capsuled/pkg/sharing"
	"capsuled/pkg/state"
	"capsuled/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	outbox *sharing.Outbox
	srv    *http.Server
}

// New initializes everything that does not need a running context: config
// validation, runtime key sets, encryption keys, and the store. Call Run
// to start the schedulers and the HTTP server.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	runtimeCfg := &config.RuntimeConfig{
		BackendKeys:  map[string]struct{}{},
		FrontendKeys: map[string]struct{}{},
		AdminKeys:    map[string]struct{}{},
		SigningKeys:  map[string]struct{}{},
	}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	for _, k := range eff.Config.Security.APIKeys.Frontend {
		runtimeCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range eff.Config.Security.APIKeys.Admin {
		runtimeCfg.AdminKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)
	config.SetCurrent(eff.Config)

	if err := setupEncryption(eff); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state layout under %s: %w", eff.DBPath, err)
	}
	if err := store.Open(state.StorePath(eff.DBPath)); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	return &App{eff: eff, version: version, commit: commit, buildDate: buildDate}, nil
}

// Run starts the cleanup scheduler, the sharing outbox, and the HTTP
// server, and blocks until ctx is canceled or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	cancelCleanup, err := cleanup.Start(ctx, a.eff.Config.Cleanup, nil)
	if err != nil {
		return err
	}
	defer cancelCleanup()

	a.outbox = sharing.NewOutbox(sharing.NewHTTPTransport(), a.eff.Config.Sharing.Outbox)
	sharing.SetOutbox(a.outbox)
	if err := a.outbox.Reload(); err != nil {
		return fmt.Errorf("failed to reload sharing outbox: %w", err)
	}
	a.outbox.Start(2)
	defer a.outbox.Stop()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return nil
	case err := <-errCh:
		return err
	}
}

// setupEncryption installs the at-rest master key when encryption is on.
func setupEncryption(eff config.EffectiveConfigResult) error {
	enc := eff.Config.Security.Encryption
	if !enc.Use {
		return nil
	}
	switch {
	case enc.MasterKeyHex != "":
		return security.SetMasterKeyHex(enc.MasterKeyHex)
	case enc.MasterKeyFile != "":
		return security.SetMasterKeyFile(enc.MasterKeyFile)
	default:
		return fmt.Errorf("encryption enabled but no master key provided")
	}
}

func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.eff, verStr)
}
