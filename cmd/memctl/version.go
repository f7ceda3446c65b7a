package main

import (
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/dxemem/alloc"
	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/internal/seed"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

type versionInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	GoVersion   string `json:"go_version,omitempty"`
	SeedSchema  string `json:"seed_schema"`
	PageSize    int    `json:"page_size"`
	AddressBits int    `json:"address_bits"`
	SizeClasses string `json:"size_classes"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	v := versionInfo{
		Version:     version,
		Commit:      commit,
		SeedSchema:  seed.SupportedVersions,
		PageSize:    format.PageSize,
		AddressBits: format.DefaultAddressBits,
		SizeClasses: alloc.DefaultConfig.Name,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		v.GoVersion = bi.GoVersion
	}
	if jsonOut {
		return printJSON(v)
	}
	printInfo("memctl %s\n", v.Version)
	printInfo("  commit: %s\n", v.Commit)
	if v.GoVersion != "" {
		printInfo("  go: %s\n", v.GoVersion)
	}
	printInfo("  seed schema: %s\n", v.SeedSchema)
	printInfo("  page size: %d, address bits: %d, size classes: %s\n", v.PageSize, v.AddressBits, v.SizeClasses)
	return nil
}
