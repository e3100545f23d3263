package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"georeg/internal/config"
	"georeg/internal/register"
)

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var (
		serverFlag      string
		references      []string
		outDirFlag      string
		outNameFlag     string
		logFlag         string
		inFlightFlag    int
		maxAttemptsFlag int
		timeoutFlag     int
	)

	cmd := &cobra.Command{
		Use:   "register <video.canv>",
		Short: "Register a canonic video's camera poses against reference terrain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			overrides := registerOverrides{
				server:      serverFlag,
				outDir:      outDirFlag,
				logLevel:    logFlag,
				inFlight:    inFlightFlag,
				maxAttempts: maxAttemptsFlag,
				timeout:     timeoutFlag,
			}
			if err := applyOverrides(cfg, cmd, overrides); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			store, err := ctx.openJournal(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			pipeline, err := register.NewPipeline(cfg, store, logger)
			if err != nil {
				return err
			}

			input, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			refs, err := expandPaths(references)
			if err != nil {
				return err
			}

			summary, err := pipeline.Run(cmd.Context(), register.Request{
				InputPath:  input,
				OutputName: strings.TrimSpace(outNameFlag),
				References: refs,
				Command:    commandLine(),
				Tag:        version,
			})
			if summary != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&serverFlag, "server", "s", "", "Server address (tcp://host:port) or path to a server binary")
	cmd.Flags().StringArrayVarP(&references, "in-references", "r", nil, "Reference dataset (.r3db); repeatable")
	cmd.Flags().StringVarP(&outDirFlag, "out-dir", "o", "", "Output directory")
	cmd.Flags().StringVarP(&outNameFlag, "out-name", "n", "", "Output file name (defaults to the input name)")
	cmd.Flags().StringVarP(&logFlag, "log", "l", "", "Log severity: debug, info, warning, error")
	cmd.Flags().IntVarP(&inFlightFlag, "in-flight", "f", 0, fmt.Sprintf("Frames in flight, 1 to %d", config.MaxInFlight))
	cmd.Flags().IntVar(&maxAttemptsFlag, "max-attempts", 0, "Registration attempts per frame before it is marked failed")
	cmd.Flags().IntVar(&timeoutFlag, "timeout", 0, "Per-attempt verdict timeout in seconds")

	return cmd
}

type registerOverrides struct {
	server      string
	outDir      string
	logLevel    string
	inFlight    int
	maxAttempts int
	timeout     int
}

// applyOverrides folds flag values into the loaded config and
// re-validates, so flag and file limits bind identically.
func applyOverrides(cfg *config.Config, cmd *cobra.Command, o registerOverrides) error {
	if v := strings.TrimSpace(o.server); v != "" {
		cfg.Server.Address = v
	}
	if v := strings.TrimSpace(o.outDir); v != "" {
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return err
		}
		cfg.Paths.OutputDir = expanded
	}
	if v := strings.TrimSpace(o.logLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if cmd.Flags().Changed("in-flight") {
		cfg.Registration.InFlight = o.inFlight
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.Registration.MaxAttempts = o.maxAttempts
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Registration.AttemptTimeout = o.timeout
	}
	return cfg.Validate()
}

func expandPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		expanded, err := config.ExpandPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

// commandLine reconstructs this invocation for the output's command
// history.
func commandLine() string {
	parts := append([]string{filepath.Base(os.Args[0])}, os.Args[1:]...)
	return strings.Join(parts, " ")
}
