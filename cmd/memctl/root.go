package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/dxemem/core"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/logger"
	"github.com/joshuapare/dxemem/internal/physmem"
	"github.com/joshuapare/dxemem/internal/seed"
)

var (
	// Global flags
	seedPath string
	quiet    bool
	jsonOut  bool
	protect  bool
	logDir   string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Boot and inspect a firmware memory subsystem",
	Long: `memctl seeds the GCD address space tracker and the typed allocators from
a YAML description of the platform and reports the resulting memory map,
region table and allocator behaviour. Without --seed the built-in x86
layout is used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&seedPath, "seed", "s", "", "Seed file (default: built-in layout)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		BoolVar(&protect, "protect", false, "Back the largest system memory region with host memory and enforce access attributes")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write logs to a dated file in this directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Enable logging at debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write log records as JSON")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging() error {
	if logLevel == "" && logDir == "" {
		return logger.Init(logger.Options{})
	}
	var level slog.Level
	if logLevel != "" {
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	opts := logger.Options{Enabled: true, LogDir: logDir, Level: level, JSON: logJSON}
	if logDir == "" {
		opts.Writer = os.Stderr
	}
	return logger.Init(opts)
}

// loadSeed reads --seed, or returns the built-in layout.
func loadSeed() (seed.Seed, error) {
	if seedPath == "" {
		return seed.Default(), nil
	}
	s, err := seed.Load(seedPath)
	if err != nil {
		return seed.Seed{}, fmt.Errorf("failed to load seed: %w", err)
	}
	return s, nil
}

// boot builds a seeded Core. The returned cleanup releases host memory
// mapped for --protect.
func boot(s seed.Seed, opts core.Options) (*core.Core, func(), error) {
	opts.Logger = logger.L
	cleanup := func() {}

	if protect {
		r, ok := largestSystemRegion(s)
		if !ok {
			return nil, nil, fmt.Errorf("--protect: seed has no system memory")
		}
		arena, err := physmem.Map(r.Base, r.Length)
		if err != nil {
			return nil, nil, fmt.Errorf("--protect: %w", err)
		}
		opts.Pager = physmem.NewPager(arena)
		cleanup = func() {
			if err := arena.Close(); err != nil {
				logger.Warn("arena close failed", "err", err)
			}
		}
	}

	c, err := core.NewSeeded(s, opts)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to seed: %w", err)
	}
	return c, cleanup, nil
}

func largestSystemRegion(s seed.Seed) (seed.Region, bool) {
	var best seed.Region
	found := false
	for _, r := range s.Regions {
		if r.Kind == gcd.SystemMemory && r.Length > best.Length {
			best, found = r, true
		}
	}
	return best, found
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
