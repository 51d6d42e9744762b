package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testAssetA = "0x1111111111111111111111111111111111111111"
	testAssetB = "0x2222222222222222222222222222222222222222"
	testAdmin  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testAlice  = "0xa11ce00000000000000000000000000000000000"
	testBob    = "0xb0b0000000000000000000000000000000000000"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) (*cli, string) {
	t.Helper()
	dir := t.TempDir()
	return &cli{t: t, base: []string{
		"--state-file", filepath.Join(dir, "ledger.json"),
		"--journal", filepath.Join(dir, "events.jsonl"),
		"--metrics-file", filepath.Join(dir, "amm.prom"),
		"--log-level", "error",
	}}, dir
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, c.base...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("%s failed: %v", args[0], err)
	}
	return out
}

func TestCommandsEndToEnd(t *testing.T) {
	c, dir := newCLI(t)

	var created struct {
		Pool struct {
			ID string `json:"id"`
		} `json:"pool"`
	}
	out := c.mustRun("init", "--asset-a", testAssetA, "--asset-b", testAssetB, "--admin", testAdmin)
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode init output: %v", err)
	}
	poolID := created.Pool.ID

	c.mustRun("credit", "--asset", testAssetA, "--custody", testAlice, "--amount", "4000")
	c.mustRun("credit", "--asset", testAssetB, "--custody", testAlice, "--amount", "9000")
	c.mustRun("deposit", "--pool", poolID, "--caller", testAlice, "--amount-a", "4000", "--amount-b", "9000")
	requireMetric(t, dir, `amm_ledger_operations_total{op="deposit",result="ok"} 1`)

	var view struct {
		Pool struct {
			ReserveA    uint64 `json:"reserve_a"`
			ShareSupply uint64 `json:"share_supply"`
		} `json:"pool"`
		Shares *uint64 `json:"shares"`
	}
	out = c.mustRun("show", "--pool", poolID, "--owner", testAlice)
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if view.Pool.ReserveA != 4000 || view.Pool.ShareSupply != 6000 || view.Shares == nil || *view.Shares != 6000 {
		t.Fatalf("unexpected pool view: %s", out)
	}

	if _, err := c.run("swap", "--pool", poolID, "--caller", testBob, "--amount-in", "1000", "--min-out", "1000000"); err == nil {
		t.Fatalf("swap below min-out should fail")
	}
	requireMetric(t, dir, `amm_ledger_operations_total{op="swap",result="rejected"} 1`)

	var events []struct {
		Version   uint64 `json:"version"`
		EventName string `json:"event_name"`
	}
	out = c.mustRun("events", "--pool", poolID)
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode events output: %v", err)
	}
	if len(events) != 2 || events[0].EventName != "initialize" || events[1].EventName != "deposit" || events[1].Version != 2 {
		t.Fatalf("unexpected events: %s", out)
	}
}

// requireMetric checks the metrics file written by the last command.
func requireMetric(t *testing.T, dir, line string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "amm.prom"))
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(data), line) {
		t.Fatalf("metrics file missing %q:\n%s", line, data)
	}
}
