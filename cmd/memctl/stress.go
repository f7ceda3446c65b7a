package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/dxemem/alloc"
	"github.com/joshuapare/dxemem/core"
	"github.com/joshuapare/dxemem/internal/seed"
	"github.com/joshuapare/dxemem/pkg/types"
)

var (
	stressTypes   []string
	stressCycles  int
	stressMaxLive int
	stressMaxSize uint64
	stressRNG     int64
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().StringSliceVar(&stressTypes, "types", []string{alloc.DefaultType.String()}, "Memory types to exercise, one workload each")
	cmd.Flags().IntVar(&stressCycles, "cycles", 1000, "Allocate/free cycles per type")
	cmd.Flags().IntVar(&stressMaxLive, "max-live", 64, "Most blocks outstanding within a cycle")
	cmd.Flags().Uint64Var(&stressMaxSize, "max-size", 4096, "Largest block size in bytes")
	cmd.Flags().Int64Var(&stressRNG, "rng-seed", 1, "Random seed for block sizes and free order")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run allocate/free cycles and report allocator behaviour",
		Long: `The stress command runs random allocate/free cycles against the allocators
of one or more memory types. Each type gets its own seeded memory subsystem
and runs concurrently with the others. Every cycle frees all it allocated,
so a type with a large enough bucket reports no GCD calls past seeding.

Example:
  memctl stress
  memctl stress --types BootServicesData,RuntimeServicesData --cycles 10000
  memctl stress --seed board.yaml --max-live 256 --max-size 65536 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context())
		},
	}
}

type stressResult struct {
	Type          string `json:"type"`
	Cycles        int    `json:"cycles"`
	Allocations   uint64 `json:"allocations"`
	PeakBytes     uint64 `json:"peak_bytes"`
	BucketPages   uint64 `json:"bucket_pages"`
	Expansions    uint64 `json:"expansions"`
	GCDAllocCalls uint64 `json:"gcd_alloc_calls"`
	FastPathHits  uint64 `json:"fast_path_hits"`
	FallbackHits  uint64 `json:"fallback_hits"`
	Splits        uint64 `json:"splits"`
	Coalesces     uint64 `json:"coalesces"`
	ReservedBytes uint64 `json:"reserved_bytes"`
	FreeBytes     uint64 `json:"free_bytes"`
}

func runStress(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if stressCycles <= 0 || stressMaxLive <= 0 || stressMaxSize == 0 {
		return fmt.Errorf("--cycles, --max-live and --max-size must be positive")
	}
	mts := make([]types.MemoryType, 0, len(stressTypes))
	for _, name := range stressTypes {
		mt, err := types.ParseMemoryType(name)
		if err != nil {
			return err
		}
		if !mt.Allocatable() {
			return fmt.Errorf("memory type %s is not allocatable", mt)
		}
		mts = append(mts, mt)
	}

	s, err := loadSeed()
	if err != nil {
		return err
	}

	results := make([]stressResult, len(mts))
	g, gctx := errgroup.WithContext(ctx)
	for i, mt := range mts {
		i, mt := i, mt
		g.Go(func() error {
			r, err := stressType(gctx, s, mt, stressRNG+int64(i))
			if err != nil {
				return fmt.Errorf("%s: %w", mt, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printStress(results)
}

// stressType runs the workload for one type on a Core of its own; a Core
// and its locks belong to a single goroutine.
func stressType(ctx context.Context, s seed.Seed, mt types.MemoryType, rngSeed int64) (stressResult, error) {
	c, cleanup, err := boot(s, core.Options{})
	if err != nil {
		return stressResult{}, err
	}
	defer cleanup()

	a, err := c.GetOrCreate(mt)
	if err != nil {
		return stressResult{}, err
	}

	type block struct{ addr, size uint64 }
	rng := rand.New(rand.NewSource(rngSeed))
	res := stressResult{Type: mt.String(), Cycles: stressCycles}
	live := make([]block, 0, stressMaxLive)

	for cycle := 0; cycle < stressCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return stressResult{}, err
		}
		live = live[:0]
		var bytes uint64
		for n := rng.Intn(stressMaxLive) + 1; n > 0; n-- {
			size := uint64(rng.Int63n(int64(stressMaxSize))) + 1
			addr, err := a.Allocate(size)
			if err != nil {
				return stressResult{}, fmt.Errorf("cycle %d: allocate %d: %w", cycle, size, err)
			}
			live = append(live, block{addr, size})
			bytes += size
			res.Allocations++
		}
		res.PeakBytes = max(res.PeakBytes, bytes)

		rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
		for _, b := range live {
			if err := a.Free(b.addr, b.size); err != nil {
				return stressResult{}, fmt.Errorf("cycle %d: free %#x: %w", cycle, b.addr, err)
			}
		}
	}

	st := a.Stats()
	if st.ReservedUsed != 0 {
		return stressResult{}, fmt.Errorf("%d bytes still in use after all frees", st.ReservedUsed)
	}
	res.BucketPages = st.BucketPages
	res.Expansions = st.ExpansionCalls
	res.GCDAllocCalls = st.GCDAllocCalls
	res.FastPathHits = st.FastPathHits
	res.FallbackHits = st.FallbackHits
	res.Splits = st.SplitCount
	res.Coalesces = st.CoalesceCount
	res.ReservedBytes = st.ReservedSize
	res.FreeBytes = a.FreeListState().FreeBytes()
	return res, nil
}

func printStress(results []stressResult) error {
	if jsonOut {
		return printJSON(results)
	}
	if quiet {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tALLOCS\tPEAK\tBUCKET\tEXPANSIONS\tGCD CALLS\tFAST\tFALLBACK\tCOALESCES\tRESERVED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.Type, formatNumber(r.Allocations), formatBytes(r.PeakBytes), formatNumber(r.BucketPages),
			r.Expansions, r.GCDAllocCalls, formatNumber(r.FastPathHits), formatNumber(r.FallbackHits),
			formatNumber(r.Coalesces), formatBytes(r.ReservedBytes))
	}
	return w.Flush()
}
