package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/joshuapare/dxemem/core"
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/logger"
	"github.com/joshuapare/dxemem/pkg/types"
)

var watchCount int

func init() {
	cmd := newWatchCmd()
	cmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many renders (0: until interrupted)")
	rootCmd.AddCommand(cmd)
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-render the memory map whenever the seed file changes",
		Long: `The watch command prints the memory map for --seed, then boots a fresh
memory subsystem and prints it again every time the file is written, along
with the per-type page changes. Invalid edits are reported and skipped.

Example:
  memctl watch --seed board.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seedPath == "" {
				return fmt.Errorf("watch needs --seed")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runWatch(ctx, seedPath, watchCount)
		},
	}
}

// runWatch renders path once, then again on every change until ctx ends or
// count renders have been produced.
func runWatch(ctx context.Context, path string, count int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace the file, so watch its directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var prev []gcd.Descriptor
	renders := 0
	render := func() {
		mm, key, err := bootMap()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		if prev != nil {
			printDelta(prev, mm)
		}
		if err := printMap(buildMapReport(mm, key, false, nil)); err != nil {
			logger.Warn("render failed", "err", err)
		}
		prev = mm
		renders++
	}

	render()
	for count == 0 || renders < count {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("seed changed", "path", ev.Name, "op", ev.Op.String())
			render()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
	return nil
}

func bootMap() ([]gcd.Descriptor, uint64, error) {
	s, err := loadSeed()
	if err != nil {
		return nil, 0, err
	}
	c, cleanup, err := boot(s, core.Options{})
	if err != nil {
		return nil, 0, err
	}
	defer cleanup()
	mm, key := c.MemoryMap()
	return mm, key, nil
}

func printDelta(prev, next []gcd.Descriptor) {
	before, after := typeTotals(prev), typeTotals(next)
	all := make([]types.MemoryType, 0, len(before)+len(after))
	for mt := range before {
		all = append(all, mt)
	}
	for mt := range after {
		if _, ok := before[mt]; !ok {
			all = append(all, mt)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	for _, mt := range all {
		if d := int64(after[mt]) - int64(before[mt]); d != 0 {
			printInfo("%s: %+d pages\n", mt, d)
		}
	}
}
