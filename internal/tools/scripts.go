package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
)

func (h *Handlers) scriptTools() []Tool {
	tools := h.folderTools("script", "script", gims.PathScriptFolders)
	return append(tools,
		h.tool(mcp.NewTool("list_scripts",
			mcp.WithDescription("List all scripts with their folder paths"),
			mcp.WithNumber("folder_id", mcp.Description("Filter by folder ID (optional)")),
		), h.listScripts),
		h.tool(mcp.NewTool("get_script",
			mcp.WithDescription("Get a script by ID, including its code"),
			idArg("script_id", "Script ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("script_id")
			if err != nil {
				return nil, err
			}
			return h.api.Get(ctx, gims.PathScripts, id)
		}),
		h.tool(mcp.NewTool("create_script",
			mcp.WithDescription("Create a new script"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Script name (unique)")),
			mcp.WithString("code", mcp.Description("Python code for the script")),
			mcp.WithNumber("folder_id", mcp.Description("Folder ID (optional)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return nil, err
			}
			body := gims.Object{"name": name, "code": req.GetString("code", "")}
			if v, ok := req.GetArguments()["folder_id"]; ok && v != nil {
				body["folder_id"] = v
			}
			return h.api.Create(ctx, gims.PathScripts, body)
		}),
		h.updateTool(mcp.NewTool("update_script",
			mcp.WithDescription("Update an existing script"),
			idArg("script_id", "Script ID to update"),
			mcp.WithString("name", mcp.Description("New script name")),
			mcp.WithString("code", mcp.Description("New Python code")),
			mcp.WithNumber("folder_id", mcp.Description("New folder ID")),
		), gims.PathScripts, "script_id", "folder_id", "name", "code", "folder_id"),
		h.deleteTool("delete_script", "Delete a script", gims.PathScripts,
			"script_id", "Script ID to delete", "Script deleted successfully"),
		h.tool(searchTool("search_scripts",
			"Search scripts by code content and/or name",
			"Where to search: 'code', 'name', or 'both' (default: 'both')",
			"code", "name", "both",
		), h.searchScripts),
	)
}

func (h *Handlers) listScripts(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	folders, err := h.api.List(ctx, gims.PathScriptFolders, nil)
	if err != nil {
		return nil, err
	}
	scripts, err := h.api.List(ctx, gims.PathScripts, nil)
	if err != nil {
		return nil, err
	}

	if _, ok := req.GetArguments()["folder_id"]; ok {
		folderID := req.GetInt("folder_id", 0)
		filtered := scripts[:0]
		for _, s := range scripts {
			if id, ok := intField(s, "folder_id"); ok && id == folderID {
				filtered = append(filtered, s)
			}
		}
		scripts = filtered
	}

	return map[string]any{
		"scripts": BuildItemPaths(scripts, BuildFolderPaths(folders), "folder_id"),
	}, nil
}

// searchScripts combines the server-side code search with a local name search.
func (h *Handlers) searchScripts(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}
	scope := req.GetString("search_in", "both")
	caseSensitive := req.GetBool("case_sensitive", false)

	results := []gims.Object{}
	seen := map[int]bool{}
	add := func(r gims.Object, matchedIn string) {
		id, ok := intField(r, "id")
		if ok && seen[id] {
			return
		}
		if ok {
			seen[id] = true
		}
		r["matched_in"] = matchedIn
		results = append(results, r)
	}

	if scope == "code" || scope == "both" {
		found, err := h.api.SearchScripts(ctx, query, caseSensitive, false)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			add(r, "code")
		}
	}
	if scope == "name" || scope == "both" {
		scripts, err := h.api.List(ctx, gims.PathScripts, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range SearchField(scripts, query, "name", caseSensitive, false) {
			add(r, "name")
		}
	}
	return map[string]any{"results": results}, nil
}
