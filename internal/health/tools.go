package health

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/healthmon/internal/logsink"
	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
	"github.com/jamesprial/healthmon/internal/tools"
)

// Tools returns the read-only MCP tools backed by m. Calls are serialised
// because a Monitor is not safe for concurrent ticks. calls may be nil.
func Tools(m *Monitor, calls *logsink.JSON) []tools.Registration {
	mu := &sync.Mutex{}
	return []tools.Registration{
		healthSnapshot(m, mu, calls),
		sensorStatus(m, mu, calls),
	}
}

// ---------------------------------------------------------------------------
// Health tools
// ---------------------------------------------------------------------------

func healthSnapshot(m *Monitor, mu *sync.Mutex, calls *logsink.JSON) tools.Registration {
	tool := mcp.NewTool("health_snapshot",
		mcp.WithDescription("Run every enabled health check once and return the snapshot: per-sensor results, healthy fan count, derived temperatures and failed classes."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		mu.Lock()
		snap := m.Tick(ctx)
		mu.Unlock()

		tools.LogCall(calls, "health_snapshot", params, "ok", start)
		return tools.JSONResult(snap), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func sensorStatus(m *Monitor, mu *sync.Mutex, calls *logsink.JSON) tools.Registration {
	tool := mcp.NewTool("sensor_status",
		mcp.WithDescription("Evaluate one sensor class and return every sensor's decoded properties, errcode and errmsg. No warnings are raised."),
		mcp.WithString("class",
			mcp.Required(),
			mcp.Description("Sensor class"),
			mcp.Enum(schema.ClassFan, schema.ClassPSU, schema.ClassTemp, schema.ClassCPU),
		),
		mcp.WithString("id",
			mcp.Description("Optional sensor ID; when set only that sensor is returned"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		class := req.GetString("class", "")
		id := req.GetString("id", "")
		params := map[string]any{"class": class, "id": id}

		mu.Lock()
		results, err := m.Status(ctx, class)
		mu.Unlock()
		if err != nil {
			tools.LogCall(calls, "sensor_status", params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		if id != "" {
			results = filterID(results, id)
			if len(results) == 0 {
				tools.LogCall(calls, "sensor_status", params, "error: not found", start)
				return tools.ErrorResult("no " + class + " sensor with id " + id), nil
			}
		}

		tools.LogCall(calls, "sensor_status", params, "ok", start)
		return tools.JSONResult(results), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func filterID(results []status.Result, id string) []status.Result {
	var out []status.Result
	for _, r := range results {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}
