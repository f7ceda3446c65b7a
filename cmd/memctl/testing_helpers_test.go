package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dxemem/internal/seed"
)

// resetFlags restores every package-level flag to its default.
func resetFlags(t *testing.T) {
	t.Helper()
	seedPath, quiet, jsonOut, protect = "", false, false, false
	logDir, logLevel, logJSON = "", "", false
	mapAlloc, mapExit = nil, false
	regionsIO, regionsAll, regionsOwner = false, false, ""
	attrsAccess, attrsCache = "", ""
	stressTypes, stressCycles, stressMaxLive, stressMaxSize, stressRNG = []string{"BootServicesData"}, 50, 16, 1024, 1
	watchCount = 0
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// writeSeed writes the built-in seed, or doc when given, to a temp file.
func writeSeed(t *testing.T, doc []byte) string {
	t.Helper()
	if doc == nil {
		doc = seed.DefaultYAML()
	}
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, doc, 0o644))
	return path
}

func decodeJSON(t *testing.T, output string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(output), v), "output: %s", output)
}
