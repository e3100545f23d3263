package preflight

import (
	"georeg/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for a run: the input video,
// the reference datasets, the output directory, and the server address.
func RunAll(cfg *config.Config, inputPath string, references []string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckInputVideo(inputPath),
		CheckOutputDirectory(cfg.Paths.OutputDir, cfg.Preflight.MinFreeGiB),
		CheckServerAddress(cfg.Server.Address),
	}
	if len(references) > 0 {
		results = append(results, CheckReferences(references))
	}
	return results
}

// Failures filters results down to the checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, res := range results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}
