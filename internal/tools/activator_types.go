package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
)

const defaultActivatorCode = "# Print all built-in variables and functions for help\nprint_help()"

func (h *Handlers) activatorTypeTools() []Tool {
	tools := h.folderTools("activator_type", "activator type", gims.PathActivatorFolders)
	return append(tools,
		h.tool(mcp.NewTool("list_activator_types",
			mcp.WithDescription("List all activator types"),
		), func(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
			folders, err := h.api.List(ctx, gims.PathActivatorFolders, nil)
			if err != nil {
				return nil, err
			}
			types, err := h.api.List(ctx, gims.PathActivatorTypes, nil)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"types": BuildItemPaths(withoutCode(types), BuildFolderPaths(folders), "folder"),
			}, nil
		}),
		h.tool(mcp.NewTool("get_activator_type",
			mcp.WithDescription("Get an activator type with its code and properties"),
			idArg("type_id", "Type ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("type_id")
			if err != nil {
				return nil, err
			}
			actType, err := h.api.Get(ctx, gims.PathActivatorTypes, id)
			if err != nil {
				return nil, err
			}
			props, err := h.activatorProperties(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"type": actType, "properties": props}, nil
		}),
		h.tool(mcp.NewTool("create_activator_type",
			mcp.WithDescription("Create a new activator type"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Type name")),
			mcp.WithString("code", mcp.Description("Python code for the activator")),
			mcp.WithString("description", mcp.Description("Description")),
			mcp.WithString("version", mcp.Description("Version (default: 1.0)")),
			mcp.WithNumber("folder_id", mcp.Description("Folder ID (optional)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return nil, err
			}
			body := gims.Object{
				"name":        name,
				"code":        req.GetString("code", defaultActivatorCode),
				"description": req.GetString("description", ""),
				"version":     req.GetString("version", "1.0"),
			}
			if v, ok := req.GetArguments()["folder_id"]; ok && v != nil {
				body["folder"] = v
			}
			return h.api.Create(ctx, gims.PathActivatorTypes, body)
		}),
		h.updateTool(mcp.NewTool("update_activator_type",
			mcp.WithDescription("Update an activator type (including its code)"),
			idArg("type_id", "Type ID"),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("code", mcp.Description("New Python code")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("version", mcp.Description("New version")),
			mcp.WithNumber("folder_id", mcp.Description("New folder ID")),
		), gims.PathActivatorTypes, "type_id", "folder", "name", "code", "description", "version", "folder_id"),
		h.deleteTool("delete_activator_type", "Delete an activator type", gims.PathActivatorTypes,
			"type_id", "Type ID", "Activator type deleted successfully"),

		h.tool(mcp.NewTool("list_activator_type_properties",
			mcp.WithDescription("List all properties of an activator type"),
			idArg("activator_type_id", "Activator type ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("activator_type_id")
			if err != nil {
				return nil, err
			}
			props, err := h.activatorProperties(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"properties": props}, nil
		}),
		h.tool(mcp.NewTool("create_activator_type_property",
			mcp.WithDescription("Create a new property for an activator type"),
			idArg("activator_type_id", "Activator type ID"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Property name")),
			mcp.WithString("label", mcp.Required(), mcp.Description("Property label (code identifier, English only)")),
			idArg("value_type_id", "Value type ID"),
			idArg("section_name_id", "Section ID"),
			mcp.WithString("description", mcp.Description("Description")),
			mcp.WithString("default_value", mcp.Description("Default value")),
			mcp.WithBoolean("is_required", mcp.Description("Is required (default: false)")),
			mcp.WithBoolean("is_hidden", mcp.Description("Is hidden (default: false)")),
		), h.createProperty(gims.PathActivatorProperties, "activator_type_id")),
		h.updateTool(mcp.NewTool("update_activator_type_property",
			mcp.WithDescription("Update an activator type property"),
			idArg("property_id", "Property ID"),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("label", mcp.Description("New label")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("default_value", mcp.Description("New default value")),
			mcp.WithBoolean("is_required", mcp.Description("Is required")),
			mcp.WithBoolean("is_hidden", mcp.Description("Is hidden")),
		), gims.PathActivatorProperties, "property_id", "",
			"name", "label", "description", "default_value", "is_required", "is_hidden"),
		h.deleteTool("delete_activator_type_property", "Delete an activator type property",
			gims.PathActivatorProperties, "property_id", "Property ID", "Property deleted successfully"),

		h.tool(searchTool("search_activator_types",
			"Search activator types by name and/or code. Default searches by name only.",
			"Where to search: 'name' (default), 'code', or 'both'",
			"name", "code", "both",
		), h.searchActivatorTypes),
	)
}

// activatorProperties lists the properties of one activator type. The
// endpoint has no owner filter, so the list is narrowed here.
func (h *Handlers) activatorProperties(ctx context.Context, typeID int) ([]gims.Object, error) {
	all, err := h.api.List(ctx, gims.PathActivatorProperties, nil)
	if err != nil {
		return nil, err
	}
	props := []gims.Object{}
	for _, p := range all {
		if id, ok := intField(p, "activator_type_id"); ok && id == typeID {
			props = append(props, p)
		}
	}
	return props, nil
}

// searchActivatorTypes matches type names and, on request, their code. The
// list endpoint omits code, so each candidate is fetched in full.
func (h *Handlers) searchActivatorTypes(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}
	scope := req.GetString("search_in", "name")
	caseSensitive := req.GetBool("case_sensitive", false)

	types, err := h.api.List(ctx, gims.PathActivatorTypes, nil)
	if err != nil {
		return nil, err
	}

	results := []gims.Object{}
	seen := map[int]bool{}
	if scope == "name" || scope == "both" {
		for _, r := range SearchField(types, query, "name", caseSensitive, false) {
			if id, ok := intField(r, "id"); ok {
				seen[id] = true
			}
			results = append(results, r)
		}
	}
	if scope == "code" || scope == "both" {
		for _, t := range types {
			id, ok := intField(t, "id")
			if !ok || seen[id] {
				continue
			}
			full, err := h.api.Get(ctx, gims.PathActivatorTypes, id)
			if err != nil {
				return nil, err
			}
			hits := SearchField([]gims.Object{full}, query, "code", caseSensitive, false)
			if len(hits) == 0 {
				continue
			}
			results = append(results, hits[0])
			seen[id] = true
		}
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}
