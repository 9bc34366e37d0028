package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jamesprial/healthmon/internal/logsink"
	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
	"github.com/jamesprial/healthmon/internal/tools"
)

// newCallToolRequest builds an mcp.CallToolRequest with the given name and
// arguments.
func newCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// extractResultText returns the text of the first content entry.
func extractResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no content entries")
	}
	tc, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("first content entry is not TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func findTool(t *testing.T, regs []tools.Registration, name string) tools.Registration {
	t.Helper()
	for _, r := range regs {
		if r.Tool.Name == name {
			return r
		}
	}
	t.Fatalf("no tool named %q", name)
	return tools.Registration{}
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func Test_Tools_Registrations(t *testing.T) {
	regs := Tools(New(emptySchema(t), &fakeEvaluator{}, &logsink.Recorder{}), nil)
	if len(regs) != 2 {
		t.Fatalf("Tools() returned %d registrations, want 2", len(regs))
	}
	for _, r := range regs {
		if r.Handler == nil {
			t.Errorf("%s handler is nil", r.Tool.Name)
		}
	}

	snap := findTool(t, regs, "health_snapshot")
	if len(snap.Tool.InputSchema.Required) != 0 {
		t.Errorf("health_snapshot required = %v, want none", snap.Tool.InputSchema.Required)
	}
	st := findTool(t, regs, "sensor_status")
	if len(st.Tool.InputSchema.Required) != 1 || st.Tool.InputSchema.Required[0] != "class" {
		t.Errorf("sensor_status required = %v, want [class]", st.Tool.InputSchema.Required)
	}
}

// ---------------------------------------------------------------------------
// health_snapshot
// ---------------------------------------------------------------------------

func Test_HealthSnapshot_ReturnsTick(t *testing.T) {
	rec := &logsink.Recorder{}
	eval := &fakeEvaluator{results: map[string][]status.Result{
		schema.ClassFan: {fan("fan1", "9000", true), fan("fan2", "", false)},
		schema.ClassPSU: {psu("psu1", true)},
	}}
	var calls bytes.Buffer
	regs := Tools(New(emptySchema(t), eval, rec), logsink.NewJSON(&calls))

	result, err := findTool(t, regs, "health_snapshot").Handler(context.Background(), newCallToolRequest("health_snapshot", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(extractResultText(t, result)), &snap); err != nil {
		t.Fatalf("result is not a snapshot: %v", err)
	}
	if snap.FanOKNum != 1 {
		t.Errorf("FanOKNum = %d, want 1", snap.FanOKNum)
	}
	if len(snap.PSUs) != 1 {
		t.Errorf("PSUs = %+v, want one", snap.PSUs)
	}
	// The tick runs the real checks, so the fan fault is still reported.
	if countPrefix(messages(rec, logsink.SeverityWarning), "%FAN-ERROR") == 0 {
		t.Errorf("warnings = %q, want fan errors", messages(rec, logsink.SeverityWarning))
	}
	if !strings.Contains(calls.String(), `"tool":"health_snapshot"`) {
		t.Errorf("call log = %q, want health_snapshot entry", calls.String())
	}
}

// ---------------------------------------------------------------------------
// sensor_status
// ---------------------------------------------------------------------------

func Test_SensorStatus_Cases(t *testing.T) {
	eval := &fakeEvaluator{
		results: map[string][]status.Result{
			schema.ClassPSU: {psu("psu2", false), psu("psu1", true)},
		},
		errs: map[string]error{schema.ClassTemp: errors.New("lm75 unreadable")},
	}

	tests := []struct {
		name      string
		args      map[string]any
		wantError string
		validate  func(t *testing.T, results []status.Result)
	}{
		{
			name: "whole class sorted by id",
			args: map[string]any{"class": "psu"},
			validate: func(t *testing.T, results []status.Result) {
				t.Helper()
				if len(results) != 2 || results[0].ID != "psu1" || results[1].ID != "psu2" {
					t.Errorf("results = %+v, want psu1, psu2", results)
				}
			},
		},
		{
			name: "single sensor by id",
			args: map[string]any{"class": "psu", "id": "psu2"},
			validate: func(t *testing.T, results []status.Result) {
				t.Helper()
				if len(results) != 1 || results[0].ID != "psu2" || results[0].OK() {
					t.Errorf("results = %+v, want faulted psu2 only", results)
				}
			},
		},
		{
			name:      "unknown id",
			args:      map[string]any{"class": "psu", "id": "psu9"},
			wantError: "no psu sensor with id psu9",
		},
		{
			name:      "unknown class",
			args:      map[string]any{"class": "disk"},
			wantError: "unknown sensor class",
		},
		{
			name:      "missing class",
			args:      map[string]any{},
			wantError: "unknown sensor class",
		},
		{
			name:      "evaluation failure",
			args:      map[string]any{"class": "temp"},
			wantError: "lm75 unreadable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &logsink.Recorder{}
			regs := Tools(New(emptySchema(t), eval, rec), nil)

			result, err := findTool(t, regs, "sensor_status").Handler(context.Background(), newCallToolRequest("sensor_status", tt.args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			text := extractResultText(t, result)

			if tt.wantError != "" {
				if !strings.HasPrefix(text, "error: ") || !strings.Contains(text, tt.wantError) {
					t.Errorf("text = %q, want error containing %q", text, tt.wantError)
				}
				return
			}
			var results []status.Result
			if err := json.Unmarshal([]byte(text), &results); err != nil {
				t.Fatalf("result is not a result list: %v\n%s", err, text)
			}
			tt.validate(t, results)
			if evs := rec.Events(); len(evs) != 0 {
				t.Errorf("events = %+v, want none", evs)
			}
		})
	}
}
