package tools

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gelarm/gims-automation-mcp-server/internal/logstream"
)

func (h *Handlers) logTools() []Tool {
	def := mcp.NewTool("get_script_execution_log",
		mcp.WithDescription("Get script execution log via SSE stream. "+
			"Waits for end marker or timeout. "+
			"Use this to collect script output after manual script execution in GIMS."),
		mcp.WithNumber("script_id", mcp.Description("Script ID in GIMS")),
		mcp.WithNumber("scr_id", mcp.Description("Alias of script_id")),
		mcp.WithNumber("timeout", mcp.Description("Timeout in seconds (overrides GIMS_LOG_STREAM_TIMEOUT)")),
		mcp.WithArray("end_markers",
			mcp.Description("End markers to stop log collection. Default: ['END SCRIPT']. An empty list collects until timeout"),
			mcp.WithStringItems()),
		mcp.WithString("filter_pattern", mcp.Description("Regex to filter log lines (applied after end marker check)")),
		mcp.WithBoolean("keep_timestamp", mcp.Description("Keep timestamp and log level in output (default: false)")),
	)
	return []Tool{{Definition: def, Handle: h.getScriptExecutionLog}}
}

// getScriptExecutionLog returns the rendered log followed by the structured
// session result as JSON. Timeout and stream errors are partial results, not
// tool errors.
func (h *Handlers) getScriptExecutionLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const name = "get_script_execution_log"

	logReq, err := logRequest(req)
	if err != nil {
		return h.fail(name, err), nil
	}
	res, err := h.logs.Run(ctx, logReq)
	if err != nil {
		return h.fail(name, err), nil
	}

	structured, err := marshalIndent(res)
	if err != nil {
		return h.fail(name, err), nil
	}
	out := mcp.NewToolResultText(res.Text())
	out.Content = append(out.Content, mcp.NewTextContent(string(structured)))
	return out, nil
}

func logRequest(req mcp.CallToolRequest) (logstream.Request, error) {
	args := req.GetArguments()
	key := "script_id"
	if _, ok := args[key]; !ok {
		key = "scr_id"
	}
	if _, ok := args[key]; !ok {
		return logstream.Request{}, errors.New("script_id is required")
	}
	id, err := req.RequireInt(key)
	if err != nil {
		return logstream.Request{}, err
	}

	markers := req.GetStringSlice("end_markers", nil)
	if markers == nil && args["end_markers"] != nil {
		markers = []string{}
	}
	out := logstream.Request{
		ScriptID:      id,
		EndMarkers:    markers,
		FilterPattern: req.GetString("filter_pattern", ""),
		KeepTimestamp: req.GetBool("keep_timestamp", false),
	}
	if secs := req.GetInt("timeout", 0); secs > 0 {
		out.Timeout = time.Duration(secs) * time.Second
	}
	return out, nil
}
