package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

const helperEnv = "HARVESTER_SUPERVISOR_HELPER"

// TestMain doubles as the child entry point for ProcessLauncher tests.
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode, os.Args[len(os.Args)-1]))
	}
	goleak.VerifyTestMain(m)
}

// runHelper emits one record per comma separated category, then exits
// according to mode.
func runHelper(mode, chunk string) int {
	enc := json.NewEncoder(os.Stdout)
	for _, c := range strings.Split(chunk, ",") {
		if c == "" {
			continue
		}
		if err := enc.Encode(map[string]any{"category": c, "name": "item-" + c}); err != nil {
			return 1
		}
	}
	switch mode {
	case "ok":
		return 0
	case "fail":
		return 3
	case "garbage":
		fmt.Fprintln(os.Stdout, "{not json")
		return 0
	default:
		return 1
	}
}
