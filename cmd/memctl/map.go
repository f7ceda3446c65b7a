package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joshuapare/dxemem/alloc"
	"github.com/joshuapare/dxemem/core"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/pkg/types"
)

var (
	mapAlloc []string
	mapExit  bool
)

func init() {
	cmd := newMapCmd()
	cmd.Flags().StringSliceVar(&mapAlloc, "alloc", nil, "Allocate TYPE=PAGES before printing (repeatable)")
	cmd.Flags().BoolVar(&mapExit, "exit", false, "Lock the GCD with the final map key")
	rootCmd.AddCommand(cmd)
}

func newMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map",
		Short: "Print the memory map handed to the OS",
		Long: `The map command seeds the memory subsystem and prints the OS memory map:
one descriptor per run of pages with the same memory type and attributes.

Example:
  memctl map
  memctl map --seed board.yaml --alloc BootServicesData=16 --alloc LoaderCode=4
  memctl map --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap()
		},
	}
}

type mapEntry struct {
	Type       string `json:"type"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Pages      uint64 `json:"pages"`
	Attributes string `json:"attributes"`
}

// typeUsage is one row of the memory type information table: pages in use
// per type, the size a later boot should give that type's bucket.
type typeUsage struct {
	Type  string `json:"type"`
	Pages uint64 `json:"pages"`
}

type mapReport struct {
	Key         string      `json:"key"`
	Locked      bool        `json:"locked"`
	Descriptors []mapEntry  `json:"descriptors"`
	TypeInfo    []typeUsage `json:"memory_type_info"`
}

func runMap() error {
	s, err := loadSeed()
	if err != nil {
		return err
	}
	c, cleanup, err := boot(s, core.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	for _, arg := range mapAlloc {
		mt, pages, err := parseTypePages(arg)
		if err != nil {
			return err
		}
		a, err := c.GetOrCreate(mt)
		if err != nil {
			return err
		}
		p, err := a.AllocatePages(pages)
		if err != nil {
			return fmt.Errorf("allocating %s: %w", arg, err)
		}
		p.Leak()
	}

	mm, key := c.MemoryMap()
	if mapExit {
		if err := c.ExitBootServices(key); err != nil {
			return err
		}
	}
	return printMap(buildMapReport(mm, key, c.GCD().Locked(), c.MemoryTypeInfo()))
}

func buildMapReport(mm []gcd.Descriptor, key uint64, locked bool, info []alloc.MemoryTypeInfo) mapReport {
	r := mapReport{Key: fmt.Sprintf("%#08x", key), Locked: locked}
	for _, in := range info {
		r.TypeInfo = append(r.TypeInfo, typeUsage{Type: in.Type.String(), Pages: in.Pages})
	}
	for _, d := range mm {
		r.Descriptors = append(r.Descriptors, mapEntry{
			Type:       d.Type.String(),
			Start:      fmt.Sprintf("%#016x", d.PhysicalStart),
			End:        fmt.Sprintf("%#016x", d.End()-1),
			Pages:      d.NumberOfPages,
			Attributes: formatAttrs(d.Attribute),
		})
	}
	return r
}

func printMap(r mapReport) error {
	if jsonOut {
		return printJSON(r)
	}
	if quiet {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tSTART\tEND\tPAGES\tATTRIBUTES")
	var total uint64
	for _, d := range r.Descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Type, d.Start, d.End, formatNumber(d.Pages), d.Attributes)
		total += d.Pages
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printInfo("\n%d descriptors, %s pages (%s), map key %s", len(r.Descriptors),
		formatNumber(total), formatBytes(format.PagesToBytes(total)), r.Key)
	if r.Locked {
		printInfo(", locked")
	}
	printInfo("\n")

	if len(r.TypeInfo) == 0 {
		return nil
	}
	printInfo("\n")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEMORY TYPE\tPAGES IN USE")
	for _, u := range r.TypeInfo {
		fmt.Fprintf(w, "%s\t%s\n", u.Type, formatNumber(u.Pages))
	}
	return w.Flush()
}

// typeTotals sums descriptor pages by memory type.
func typeTotals(mm []gcd.Descriptor) map[types.MemoryType]uint64 {
	out := make(map[types.MemoryType]uint64)
	for _, d := range mm {
		out[d.Type] += d.NumberOfPages
	}
	return out
}
