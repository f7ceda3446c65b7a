package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/dxemem/core"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/pkg/types"
)

var (
	attrsAccess string
	attrsCache  string
)

func init() {
	cmd := newAttrsCmd()
	cmd.Flags().StringVar(&attrsAccess, "access", "", "Access attributes to set, e.g. RO or RP|XP (empty clears them)")
	cmd.Flags().StringVar(&attrsCache, "cache", "", "Caching attribute to set, e.g. WB (empty leaves caching unchanged)")
	rootCmd.AddCommand(cmd)
}

func newAttrsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attrs <base> <length>",
		Short: "Set and read back the attributes of a memory range",
		Long: `The attrs command seeds the memory subsystem, sets the access and caching
attributes of a page-aligned range and reads them back. With --protect the
change is also applied to host memory backing the range.

Example:
  memctl attrs 0x200000 0x4000 --access RO
  memctl attrs 0x200000 0x4000 --access RP --cache UC --protect`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttrs(args)
		},
	}
}

type attrsReport struct {
	Base       string        `json:"base"`
	Length     string        `json:"length"`
	Attributes string        `json:"attributes"`
	Regions    []regionEntry `json:"regions"`
}

func runAttrs(args []string) error {
	base, err := parseUint(args[0])
	if err != nil {
		return fmt.Errorf("bad base: %w", err)
	}
	length, err := parseUint(args[1])
	if err != nil {
		return fmt.Errorf("bad length: %w", err)
	}
	access, err := types.ParseAttributes(attrsAccess)
	if err != nil {
		return err
	}
	caching, err := types.ParseAttributes(attrsCache)
	if err != nil {
		return err
	}

	s, err := loadSeed()
	if err != nil {
		return err
	}
	c, cleanup, err := boot(s, core.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	if err := c.GCD().SetAttributes(base, length, access, caching); err != nil {
		return fmt.Errorf("set attributes: %w", err)
	}
	got, err := c.GCD().GetAttributes(base, length)
	if err != nil {
		return fmt.Errorf("get attributes: %w", err)
	}

	var touched []gcd.Region
	r := gcd.Range{Base: base, Length: length}
	for _, reg := range c.Snapshot().Memory {
		if reg.Start < r.End() && base < reg.End() {
			touched = append(touched, reg)
		}
	}

	rep := attrsReport{
		Base:       fmt.Sprintf("%#x", base),
		Length:     fmt.Sprintf("%#x", length),
		Attributes: formatAttrs(got),
		Regions:    buildRegionEntries(touched, true),
	}
	if jsonOut {
		return printJSON(rep)
	}
	printInfo("%s+%s: %s\n\n", rep.Base, rep.Length, rep.Attributes)
	if quiet {
		return nil
	}
	return printRegions(rep.Regions)
}
