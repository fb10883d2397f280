package banner

import (
	"fmt"

	"capsuled/pkg/config"
)

const banner = `
 ██████╗ █████╗ ██████╗ ███████╗██╗   ██╗██╗     ███████╗██████╗
██╔════╝██╔══██╗██╔══██╗██╔════╝██║   ██║██║     ██╔════╝██╔══██╗
██║     ███████║██████╔╝███████╗██║   ██║██║     █████╗  ██║  ██║
██║     ██╔══██║██╔═══╝ ╚════██║██║   ██║██║     ██╔══╝  ██║  ██║
╚██████╗██║  ██║██║     ███████║╚██████╔╝███████╗███████╗██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝     ╚══════╝ ╚═════╝ ╚══════╝╚══════╝╚═════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)
	fmt.Printf("Encryption: %v\n", eff.Config.Security.Encryption.Use)
	if eff.Config.Cleanup.Enabled {
		fmt.Printf("Cleanup:  cron %q\n", eff.Config.Cleanup.Cron)
	}
	if n := len(eff.Config.Sharing.Peers); n > 0 {
		fmt.Printf("Peers:    %d configured\n", n)
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://%s/v1/capsules' -H 'X-Role-Name: backend' -H 'X-Caller-ID: u1'\n", addr)
	fmt.Printf("curl 'http://%s/v1/capsules/self' -H 'X-Role-Name: backend' -H 'X-Caller-ID: u1'\n", addr)

	be := len(eff.Config.Security.APIKeys.Backend)
	fe := len(eff.Config.Security.APIKeys.Frontend)
	ak := len(eff.Config.Security.APIKeys.Admin)
	if be+fe+ak == 0 {
		fmt.Println("\nWARNING: no API keys configured; all callers are anonymous")
	}
}
