package preflight

import (
	"context"

	"camliup/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Critical results block daemon start when they fail.
	Critical bool
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	data := CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)
	data.Critical = true
	results = append(results, data)

	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.DataDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	address := CheckServerAddress(cfg.Server.Address)
	results = append(results, address)
	if address.Passed {
		results = append(results, CheckServerReachable(ctx, cfg.Server.Address))
	}
	return results
}

// FirstCriticalFailure returns the first failed critical result, if any.
func FirstCriticalFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Critical && !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}
