package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/devblac/batchtrace/internal/config"
	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/fault"
	"github.com/devblac/batchtrace/internal/logging"
)

func TestScaffoldProducesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	if err := scaffold(cfgFile, sampleConfig, false); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if err := scaffold(cfgFile, sampleConfig, false); err == nil {
		t.Fatalf("expected existing file to be kept without --force")
	}
	if err := scaffold(cfgFile, sampleConfig, true); err != nil {
		t.Fatalf("scaffold --force: %v", err)
	}

	t.Setenv("BATCHTRACE_RPC_URL", "ws://node:8546")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if cfg.Sync.ChunkSize != 2000 || cfg.Events.HistorySize != 100 {
		t.Fatalf("unexpected sample values %+v %+v", cfg.Sync, cfg.Events)
	}
}

func sampleEvents() []events.Event {
	ts := time.Unix(1_700_000_042, 0).UTC()
	return []events.Event{
		events.BatchCreated{
			Meta:      events.Meta{SubjectID: "1", BlockNumber: 42, TransactionHash: "0xabc", Timestamp: &ts},
			BatchName: "Shatavari, lot 1",
			Creator:   "0x00000000000000000000000000000000000000c1",
		},
		events.TesterAdded{
			Meta:   events.Meta{SubjectID: "1", BlockNumber: 43, TransactionHash: "0xdef", LogIndex: 2},
			Tester: "0x00000000000000000000000000000000000000d2",
		},
	}
}

func TestWriteEventsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := writeEvents(&buf, "csv", sampleEvents()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "created" || rows[1][5] != "2023-11-14T22:14:02Z" || rows[1][7] != "Shatavari, lot 1" {
		t.Fatalf("unexpected created row %v", rows[1])
	}
	if rows[2][0] != "tester" || rows[2][4] != "2" || rows[2][5] != "" {
		t.Fatalf("unexpected tester row %v", rows[2])
	}
}

func TestWriteEventsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeEvents(&buf, "json", sampleEvents()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var recs []record
	if err := json.Unmarshal(buf.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[1].Actor != "0x00000000000000000000000000000000000000d2" || recs[0].BatchName == "" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestReportLedgerErrorHidesCause(t *testing.T) {
	var out, logs bytes.Buffer
	cause := errors.New("dial tcp 10.0.0.7:8546: network is unreachable")

	err := reportLedgerError(&out, logging.NewWriter(&logs, "debug"), "ledger", cause)
	if err == nil || strings.Contains(err.Error(), "10.0.0.7") {
		t.Fatalf("returned error leaks the cause: %v", err)
	}
	if strings.Contains(out.String(), "10.0.0.7") || !strings.Contains(out.String(), fault.UserMessage(cause)) {
		t.Fatalf("unexpected output %q", out.String())
	}
	if !strings.Contains(logs.String(), "10.0.0.7") {
		t.Fatalf("cause should reach the debug log: %q", logs.String())
	}
}

func TestVersionJSON(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	flagVersionJSON = true
	t.Cleanup(func() { flagVersionJSON = false })

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatalf("version: %v", err)
	}
	var b buildInfo
	if err := json.Unmarshal(out.Bytes(), &b); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if b.Version != version || b.Go != runtime.Version() {
		t.Fatalf("unexpected build info %+v", b)
	}
}
