package main

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/dxemem/pkg/types"
)

var numbers = message.NewPrinter(language.English)

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatNumber groups digits: 1234567 -> "1,234,567".
func formatNumber(n uint64) string {
	return numbers.Sprintf("%d", n)
}

func formatAttrs(a types.Attributes) string {
	if a == 0 {
		return "-"
	}
	return a.String()
}

// parseUint accepts decimal and 0x-prefixed hex.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
}

// parseTypePages parses TYPE=PAGES.
func parseTypePages(s string) (types.MemoryType, uint64, error) {
	name, count, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("expected TYPE=PAGES, got %q", s)
	}
	mt, err := types.ParseMemoryType(name)
	if err != nil {
		return 0, 0, err
	}
	pages, err := parseUint(count)
	if err != nil {
		return 0, 0, fmt.Errorf("bad page count in %q: %w", s, err)
	}
	return mt, pages, nil
}
