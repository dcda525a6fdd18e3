package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sdgateway/core"
	"sdgateway/logging"
	"sdgateway/profile"
	"sdgateway/sdruntime"
)

// runPreflight checks the profile file, output directories, history
// directory and engine. Only the engine check is advisory: the webui is
// often started after the gateway.
func runPreflight(cfg *core.Config, show bool) core.PreflightResult {
	var snap *profile.Snapshot

	p := core.NewPreflight("sdgateway preflight").
		WithShowProgress(show).
		WithFailFast(true)

	p.Add(core.Check{
		Name:     "Profile file",
		Required: true,
		Run: func() (string, error) {
			s, err := profile.NewFileSource(cfg.ProfilePath).Load()
			if err != nil {
				return "", core.ErrProfileUnreadable(cfg.ProfilePath, err.Error())
			}
			snap = s
			return cfg.ProfilePath, nil
		},
	})

	p.Add(core.Check{
		Name:     "Output directories",
		Required: true,
		Run: func() (string, error) {
			dirs := outputDirs(snap)
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return "", core.ErrDirectoryUnwritable(dir, err.Error())
				}
			}
			return fmt.Sprintf("%d ready", len(dirs)), nil
		},
	})

	if cfg.HistoryEnabled() {
		p.Add(core.Check{
			Name:     "History directory",
			Required: true,
			Run: func() (string, error) {
				dir := filepath.Dir(cfg.HistoryDB)
				if dir == core.GetDataDirectory() {
					// per-user data directory stays private
					if _, err := core.EnsureDataDirectory(); err != nil {
						return "", core.ErrDirectoryUnwritable(dir, err.Error())
					}
					return dir, nil
				}
				if err := os.MkdirAll(dir, 0755); err != nil {
					return "", core.ErrDirectoryUnwritable(dir, err.Error())
				}
				return dir, nil
			},
		})
	}

	p.Add(core.Check{
		Name:     "Inference engine",
		Required: false,
		Run: func() (string, error) {
			client := sdruntime.NewClient(sdruntime.ClientConfig{
				BaseURL: cfg.EngineURL,
				Auth:    cfg.EngineAuth,
				Timeout: 5 * time.Second,
			}, logging.NewNop())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Ping(ctx); err != nil {
				return "", core.ErrEngineUnreachable(cfg.EngineURL, err.Error())
			}
			return cfg.EngineURL, nil
		},
	})

	return p.Run()
}

// outputDirs returns the distinct sample paths named by snap.
func outputDirs(snap *profile.Snapshot) []string {
	if snap == nil {
		return nil
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, dir := range []string{
		snap.Generate.SamplePath,
		snap.Edit.SamplePath,
		snap.Upscale.SamplePath,
		snap.PluginSamplePath(),
	} {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}
