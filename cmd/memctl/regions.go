package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joshuapare/dxemem/core"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/pkg/types"
)

var (
	regionsIO    bool
	regionsAll   bool
	regionsOwner string
)

func init() {
	cmd := newRegionsCmd()
	cmd.Flags().BoolVar(&regionsIO, "io", false, "Show the I/O port space instead of memory")
	cmd.Flags().BoolVar(&regionsAll, "all", false, "Include NonExistent regions")
	cmd.Flags().StringVar(&regionsOwner, "owner", "", "Only regions owned by the allocator of this memory type")
	rootCmd.AddCommand(cmd)
}

func newRegionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "Print the GCD region table",
		Long: `The regions command prints every region the GCD tracks after seeding:
kind, state, memory type, owner, capabilities and attributes.

Example:
  memctl regions
  memctl regions --io
  memctl regions --owner RuntimeServicesData`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegions()
		},
	}
}

type regionEntry struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	Kind         string `json:"kind"`
	State        string `json:"state"`
	MemoryType   string `json:"memory_type,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Capabilities string `json:"capabilities"`
	Attributes   string `json:"attributes"`
}

func runRegions() error {
	s, err := loadSeed()
	if err != nil {
		return err
	}
	c, cleanup, err := boot(s, core.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	snap := c.Snapshot()
	regions := snap.Memory
	if regionsIO {
		regions = snap.IO
	}
	if regionsOwner != "" {
		mt, err := types.ParseMemoryType(regionsOwner)
		if err != nil {
			return err
		}
		a, err := c.GetOrCreate(mt)
		if err != nil {
			return err
		}
		regions = snap.Owned(a.Owner())
	}
	return printRegions(buildRegionEntries(regions, regionsAll))
}

func buildRegionEntries(regions []gcd.Region, all bool) []regionEntry {
	out := make([]regionEntry, 0, len(regions))
	for _, r := range regions {
		if r.Kind == gcd.NonExistent && !all {
			continue
		}
		e := regionEntry{
			Start:        fmt.Sprintf("%#x", r.Start),
			End:          fmt.Sprintf("%#x", r.End()-1),
			Kind:         r.Kind.String(),
			State:        r.State.String(),
			Capabilities: formatAttrs(r.Capabilities),
			Attributes:   formatAttrs(r.Attributes),
		}
		if r.MemoryType != types.NoMemoryType {
			e.MemoryType = r.MemoryType.String()
		}
		if !r.Owner.IsZero() {
			e.Owner = r.Owner.String()
		}
		out = append(out, e)
	}
	return out
}

func printRegions(entries []regionEntry) error {
	if jsonOut {
		return printJSON(entries)
	}
	if quiet {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tKIND\tSTATE\tTYPE\tOWNER\tCAPS\tATTRS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Start, e.End, e.Kind, e.State, dash(e.MemoryType), dash(e.Owner), e.Capabilities, e.Attributes)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
