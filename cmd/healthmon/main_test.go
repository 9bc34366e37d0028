package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesprial/healthmon/internal/config"
	"github.com/jamesprial/healthmon/internal/health"
	"github.com/jamesprial/healthmon/internal/logsink"
)

// writeFile creates dir/name with content, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvSchema, config.EnvRegisterRoot, config.EnvInterval, config.EnvMetricsTextfile} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// ---------------------------------------------------------------------------
// loadConfig
// ---------------------------------------------------------------------------

func Test_loadConfig_Cases(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, dir string) *options
		wantErr     bool
		errContains string
		validate    func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "missing files fall back to defaults",
			setup: func(t *testing.T, dir string) *options {
				return &options{configPath: filepath.Join(dir, "none.yaml"), envFile: filepath.Join(dir, "none.env")}
			},
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if *cfg != *config.DefaultConfig() {
					t.Errorf("config = %+v, want defaults", cfg)
				}
			},
		},
		{
			name: "env file overrides config file",
			setup: func(t *testing.T, dir string) *options {
				return &options{
					configPath: writeFile(t, dir, "config.yaml", "paths:\n  schema: /file/dev.xml\nmonitor:\n  interval_seconds: 12\n"),
					envFile:    writeFile(t, dir, "healthmon.env", "HEALTHMON_SCHEMA=/env/dev.xml\n"),
				}
			},
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Paths.Schema != "/env/dev.xml" {
					t.Errorf("Paths.Schema = %q, want /env/dev.xml", cfg.Paths.Schema)
				}
				if cfg.Monitor.IntervalSeconds != 12 {
					t.Errorf("Monitor.IntervalSeconds = %d, want 12", cfg.Monitor.IntervalSeconds)
				}
			},
		},
		{
			name: "invalid config is rejected",
			setup: func(t *testing.T, dir string) *options {
				return &options{configPath: writeFile(t, dir, "config.yaml", "monitor:\n  interval_seconds: 0\n")}
			},
			wantErr:     true,
			errContains: "invalid config",
		},
		{
			name: "bad interval override",
			setup: func(t *testing.T, dir string) *options {
				return &options{envFile: writeFile(t, dir, "healthmon.env", "HEALTHMON_INTERVAL=soon\n"), configPath: filepath.Join(dir, "none.yaml")}
			},
			wantErr:     true,
			errContains: config.EnvInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := loadConfig(tt.setup(t, t.TempDir()))
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("err = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

// ---------------------------------------------------------------------------
// check command
// ---------------------------------------------------------------------------

// writeCheckFixture lays out a register tree with two healthy fans, a faulted
// psu1 and a healthy psu2, plus a config file pointing at it. It returns the
// config path and the event log path.
func writeCheckFixture(t *testing.T) (string, string) {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("..", "..", "testdata", "dev.xml"))
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	regs := filepath.Join(dir, "i2c")
	writeFile(t, regs, "2-0037/fan_present", "0x0\n")
	writeFile(t, regs, "2-0037/fan_status", "0x3\n")
	writeFile(t, regs, "2-0037/fan1_speed", "9000\n")
	writeFile(t, regs, "2-0037/fan2_speed", "9100\n")
	writeFile(t, regs, "2-0037/psu_status", "0x20\n")
	events := filepath.Join(dir, "events.jsonl")
	cfgPath := writeFile(t, dir, "config.yaml", strings.Join([]string{
		"paths:",
		"  schema: " + schemaPath,
		"  registers: " + regs,
		"  pid_file: " + filepath.Join(dir, "healthmon.pid"),
		"log:",
		"  syslog: false",
		"  event_log: " + events,
		"  call_log: " + filepath.Join(dir, "calls.jsonl"),
	}, "\n")+"\n")
	return cfgPath, events
}

func Test_CheckCommand_PrintsSnapshot(t *testing.T) {
	clearEnv(t)
	cfgPath, events := writeCheckFixture(t)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--config", cfgPath, "--env-file", ""})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("check: %v", err)
	}

	var snap health.Snapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("output is not a snapshot: %v\n%s", err, out.String())
	}
	if snap.FanOKNum != 2 {
		t.Errorf("FanOKNum = %d, want 2", snap.FanOKNum)
	}
	if len(snap.PSUs) != 2 || snap.PSUs[0].OK() || !snap.PSUs[1].OK() {
		t.Errorf("PSUs = %+v, want psu1 faulted and psu2 healthy", snap.PSUs)
	}

	logged, err := os.ReadFile(events)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	for _, want := range []string{"%FAN-ERROR_FAN_NUM : 2", "psu1 : OUTPUT FAIL"} {
		if !strings.Contains(string(logged), want) {
			t.Errorf("event log missing %q:\n%s", want, logged)
		}
	}
}

func Test_RootCommand_PrefixSelectsSubcommand(t *testing.T) {
	clearEnv(t)
	cfgPath, _ := writeCheckFixture(t)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"chec", "--config", cfgPath, "--env-file", ""})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chec: %v", err)
	}
	var snap health.Snapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("output is not a snapshot: %v\n%s", err, out.String())
	}
}

// ---------------------------------------------------------------------------
// start
// ---------------------------------------------------------------------------

func Test_runStart_LogsStartAndStopEvents(t *testing.T) {
	clearEnv(t)
	cfgPath, events := writeCheckFixture(t)
	cfg, err := loadConfig(&options{configPath: cfgPath})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runStart(ctx, cfg); err != nil {
		t.Fatalf("runStart: %v", err)
	}

	data, err := os.ReadFile(events)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	var got []logsink.Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev logsink.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("events = %+v, want start and stop", got)
	}
	if got[0].Message != "HEALTHMONITOR start" || got[1].Message != "stop" {
		t.Errorf("messages = %q, %q; want %q, %q", got[0].Message, got[1].Message, "HEALTHMONITOR start", "stop")
	}
	for _, ev := range got {
		if ev.Severity != logsink.SeverityWarning {
			t.Errorf("%q severity = %s, want %s", ev.Message, ev.Severity, logsink.SeverityWarning)
		}
	}
	if _, err := readPidFile(cfg.Paths.PidFile); !errors.Is(err, errNotRunning) {
		t.Errorf("pid file left behind: %v", err)
	}
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func Test_RootCommand_HasSubcommands(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"start", "check", "stop", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("Find(%q) = %v, %v; want the %s command", name, sub, err, name)
		}
	}
}

func Test_newMCPServer_ServesHealthTools(t *testing.T) {
	clearEnv(t)
	cfgPath, _ := writeCheckFixture(t)
	cfg, err := loadConfig(&options{configPath: cfgPath})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()
	calls, err := a.openCallLog(cfg)
	if err != nil {
		t.Fatalf("openCallLog: %v", err)
	}
	s := newMCPServer(a, calls)

	list, err := json.Marshal(s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	if err != nil {
		t.Fatalf("marshal tools/list: %v", err)
	}
	for _, name := range []string{"health_snapshot", "sensor_status"} {
		if !strings.Contains(string(list), `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, list)
		}
	}

	resp, err := json.Marshal(s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"sensor_status","arguments":{"class":"psu","id":"psu1"}}}`)))
	if err != nil {
		t.Fatalf("marshal tools/call: %v", err)
	}
	if !strings.Contains(string(resp), "psu1") {
		t.Errorf("tools/call response missing psu1: %s", resp)
	}

	logged, err := os.ReadFile(cfg.Log.CallLog)
	if err != nil {
		t.Fatalf("read call log: %v", err)
	}
	if !strings.Contains(string(logged), `"tool":"sensor_status"`) {
		t.Errorf("call log = %q, want sensor_status entry", logged)
	}
}

// ---------------------------------------------------------------------------
// pid file
// ---------------------------------------------------------------------------

func Test_PidFile_Cases(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		wantPid int
		wantErr error
		errText string
	}{
		{name: "missing file", wantErr: errNotRunning},
		{name: "valid pid", content: ptr("4242\n"), wantPid: 4242},
		{name: "garbage", content: ptr("abc"), errText: "invalid content"},
		{name: "zero pid", content: ptr("0"), errText: "invalid content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "healthmon.pid")
			if tt.content != nil {
				writeFile(t, filepath.Dir(path), filepath.Base(path), *tt.content)
			}
			pid, err := readPidFile(path)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Fatalf("err = %v, want containing %q", err, tt.errText)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if pid != tt.wantPid {
					t.Errorf("pid = %d, want %d", pid, tt.wantPid)
				}
			}
		})
	}
}

func Test_PidFile_RoundTripAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthmon.pid")
	if err := writePidFile(path, 31337); err != nil {
		t.Fatalf("writePidFile: %v", err)
	}
	pid, err := readPidFile(path)
	if err != nil || pid != 31337 {
		t.Fatalf("readPidFile = %d, %v; want 31337", pid, err)
	}
	removePidFile(path)
	if _, err := readPidFile(path); !errors.Is(err, errNotRunning) {
		t.Errorf("after remove err = %v, want errNotRunning", err)
	}
}

func ptr(s string) *string { return &s }
