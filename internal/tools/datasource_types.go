package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
)

const (
	defaultMethodCode = "# Method code\npass"
	valueTypeHint     = "Value type ID (use list_value_types). IMPORTANT: Do NOT use 'Список' or 'Справочник' types - use 'Объект' instead"
)

func (h *Handlers) datasourceTypeTools() []Tool {
	tools := h.folderTools("datasource_type", "datasource type", gims.PathDSTypeFolders)
	tools = append(tools,
		h.tool(mcp.NewTool("list_datasource_types",
			mcp.WithDescription("List all datasource types"),
		), func(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
			folders, err := h.api.List(ctx, gims.PathDSTypeFolders, nil)
			if err != nil {
				return nil, err
			}
			types, err := h.api.List(ctx, gims.PathDSTypes, nil)
			if err != nil {
				return nil, err
			}
			return map[string]any{"types": BuildItemPaths(types, BuildFolderPaths(folders), "folder")}, nil
		}),
		h.tool(mcp.NewTool("get_datasource_type",
			mcp.WithDescription("Get a datasource type. Use include_properties=false and include_methods=false to get only basic type info (useful when full response is too large)"),
			idArg("type_id", "Type ID"),
			mcp.WithBoolean("include_properties", mcp.Description("Include properties (default: true)")),
			mcp.WithBoolean("include_methods", mcp.Description("Include methods with code (default: true)")),
		), h.getDatasourceType),
		h.tool(mcp.NewTool("create_datasource_type",
			mcp.WithDescription("Create a new datasource type"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Type name")),
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
				"description": req.GetString("description", ""),
				"version":     req.GetString("version", "1.0"),
			}
			if v, ok := req.GetArguments()["folder_id"]; ok && v != nil {
				body["folder"] = v
			}
			return h.api.Create(ctx, gims.PathDSTypes, body)
		}),
		h.updateTool(mcp.NewTool("update_datasource_type",
			mcp.WithDescription("Update a datasource type"),
			idArg("type_id", "Type ID"),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("version", mcp.Description("New version")),
			mcp.WithNumber("folder_id", mcp.Description("New folder ID")),
		), gims.PathDSTypes, "type_id", "folder", "name", "description", "version", "folder_id"),
		h.deleteTool("delete_datasource_type", "Delete a datasource type", gims.PathDSTypes,
			"type_id", "Type ID", "Datasource type deleted successfully"),
	)
	tools = append(tools, h.datasourcePropertyTools()...)
	tools = append(tools, h.datasourceMethodTools()...)
	tools = append(tools, h.methodParameterTools()...)
	return append(tools, h.tool(searchTool("search_datasource_types",
		"Search datasource types by name and/or method code. Default searches by name only.",
		"Where to search: 'name' (default), 'code' (method code), or 'both'",
		"name", "code", "both",
	), h.searchDatasourceTypes))
}

func (h *Handlers) getDatasourceType(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	id, err := req.RequireInt("type_id")
	if err != nil {
		return nil, err
	}
	dsType, err := h.api.Get(ctx, gims.PathDSTypes, id)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"type": dsType}

	if req.GetBool("include_properties", true) {
		props, err := h.api.List(ctx, gims.PathDSTypeProperties, idQuery("mds_type_id", id))
		if err != nil {
			return nil, err
		}
		out["properties"] = props
	}
	if req.GetBool("include_methods", true) {
		methods, err := h.api.List(ctx, gims.PathDSTypeMethods, idQuery("mds_type_id", id))
		if err != nil {
			return nil, err
		}
		for _, m := range methods {
			mid, ok := intField(m, "id")
			if !ok {
				continue
			}
			params, err := h.api.List(ctx, gims.PathMethodParams, idQuery("method_id", mid))
			if err != nil {
				return nil, err
			}
			m["parameters"] = params
		}
		out["methods"] = methods
	}
	return out, nil
}

func (h *Handlers) datasourcePropertyTools() []Tool {
	return []Tool{
		h.tool(mcp.NewTool("list_datasource_type_properties",
			mcp.WithDescription("List all properties of a datasource type"),
			idArg("mds_type_id", "Datasource type ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("mds_type_id")
			if err != nil {
				return nil, err
			}
			props, err := h.api.List(ctx, gims.PathDSTypeProperties, idQuery("mds_type_id", id))
			if err != nil {
				return nil, err
			}
			return map[string]any{"properties": props}, nil
		}),
		h.tool(mcp.NewTool("create_datasource_type_property",
			mcp.WithDescription("Create a new property for a datasource type. Property is accessed in method code via self.property_label"),
			idArg("mds_type_id", "Datasource type ID"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Property display name")),
			mcp.WithString("label", mcp.Required(), mcp.Description("Property label - variable name in code (snake_case, English). Access via self.label")),
			idArg("value_type_id", valueTypeHint),
			idArg("section_name_id", "Section ID (use list_property_sections)"),
			mcp.WithString("description", mcp.Description("Description")),
			mcp.WithString("default_value", mcp.Description("Default value")),
			mcp.WithBoolean("is_required", mcp.Description("Is required (default: false)")),
			mcp.WithBoolean("is_hidden", mcp.Description("Is hidden (default: false)")),
			mcp.WithNumber("default_dict_value_id", mcp.Description("Default dictionary value ID (for dictionary properties)")),
		), h.createProperty(gims.PathDSTypeProperties, "mds_type_id")),
		h.updateTool(mcp.NewTool("update_datasource_type_property",
			mcp.WithDescription("Update a datasource type property"),
			idArg("property_id", "Property ID"),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("label", mcp.Description("New label")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("default_value", mcp.Description("New default value")),
			mcp.WithBoolean("is_required", mcp.Description("Is required")),
			mcp.WithBoolean("is_hidden", mcp.Description("Is hidden")),
		), gims.PathDSTypeProperties, "property_id", "",
			"name", "label", "description", "default_value", "is_required", "is_hidden"),
		h.deleteTool("delete_datasource_type_property", "Delete a datasource type property",
			gims.PathDSTypeProperties, "property_id", "Property ID", "Property deleted successfully"),
	}
}

// createProperty builds the create handler shared by datasource and
// activator type properties; ownerKey names the owning type field.
func (h *Handlers) createProperty(collection, ownerKey string) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		body := gims.Object{}
		for _, k := range []string{ownerKey, "value_type_id", "section_name_id"} {
			v, err := req.RequireInt(k)
			if err != nil {
				return nil, err
			}
			body[k] = v
		}
		for _, k := range []string{"name", "label"} {
			v, err := req.RequireString(k)
			if err != nil {
				return nil, err
			}
			body[k] = v
		}
		body["description"] = req.GetString("description", "")
		body["default_value"] = req.GetString("default_value", "")
		body["is_required"] = req.GetBool("is_required", false)
		body["is_hidden"] = req.GetBool("is_hidden", false)
		if v, ok := req.GetArguments()["default_dict_value_id"]; ok {
			body["default_dict_value_id"] = v
		}
		return h.api.Create(ctx, collection, body)
	}
}

func (h *Handlers) datasourceMethodTools() []Tool {
	return []Tool{
		h.tool(mcp.NewTool("list_datasource_type_methods",
			mcp.WithDescription("List all methods of a datasource type (without code, use get_datasource_type_method for full code)"),
			idArg("mds_type_id", "Datasource type ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("mds_type_id")
			if err != nil {
				return nil, err
			}
			methods, err := h.api.List(ctx, gims.PathDSTypeMethods, idQuery("mds_type_id", id))
			if err != nil {
				return nil, err
			}
			return map[string]any{"methods": withoutCode(methods)}, nil
		}),
		h.tool(mcp.NewTool("get_datasource_type_method",
			mcp.WithDescription("Get a single method with its full code and parameters"),
			idArg("method_id", "Method ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("method_id")
			if err != nil {
				return nil, err
			}
			method, err := h.api.Get(ctx, gims.PathDSTypeMethods, id)
			if err != nil {
				return nil, err
			}
			params, err := h.api.List(ctx, gims.PathMethodParams, idQuery("method_id", id))
			if err != nil {
				return nil, err
			}
			return map[string]any{"method": method, "parameters": params}, nil
		}),
		h.tool(mcp.NewTool("create_datasource_type_method",
			mcp.WithDescription("Create a new method for a datasource type"),
			idArg("mds_type_id", "Datasource type ID"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Method name")),
			mcp.WithString("label", mcp.Required(), mcp.Description("Method label (code identifier, English only)")),
			mcp.WithString("code", mcp.Description("Python code for the method")),
			mcp.WithString("description", mcp.Description("Description")),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			typeID, err := req.RequireInt("mds_type_id")
			if err != nil {
				return nil, err
			}
			name, err := req.RequireString("name")
			if err != nil {
				return nil, err
			}
			label, err := req.RequireString("label")
			if err != nil {
				return nil, err
			}
			return h.api.Create(ctx, gims.PathDSTypeMethods, gims.Object{
				"mds_type_id": typeID,
				"name":        name,
				"label":       label,
				"code":        req.GetString("code", defaultMethodCode),
				"description": req.GetString("description", ""),
			})
		}),
		h.updateTool(mcp.NewTool("update_datasource_type_method",
			mcp.WithDescription("Update a datasource type method (including its code)"),
			idArg("method_id", "Method ID"),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("label", mcp.Description("New label")),
			mcp.WithString("code", mcp.Description("New Python code")),
			mcp.WithString("description", mcp.Description("New description")),
		), gims.PathDSTypeMethods, "method_id", "", "name", "label", "code", "description"),
		h.deleteTool("delete_datasource_type_method", "Delete a datasource type method",
			gims.PathDSTypeMethods, "method_id", "Method ID", "Method deleted successfully"),
	}
}

func (h *Handlers) methodParameterTools() []Tool {
	return []Tool{
		h.tool(mcp.NewTool("list_method_parameters",
			mcp.WithDescription("List all parameters of a method"),
			idArg("method_id", "Method ID"),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			id, err := req.RequireInt("method_id")
			if err != nil {
				return nil, err
			}
			params, err := h.api.List(ctx, gims.PathMethodParams, idQuery("method_id", id))
			if err != nil {
				return nil, err
			}
			return map[string]any{"parameters": params}, nil
		}),
		h.tool(mcp.NewTool("create_method_parameter",
			mcp.WithDescription("Create input or output parameter for a datasource type method. Input parameters (input_type=true) are passed when calling the method. Output parameters (input_type=false) are returned as dict from the method."),
			idArg("method_id", "Method ID"),
			mcp.WithString("label", mcp.Required(), mcp.Description("Parameter label - variable name in method code (snake_case, English)")),
			idArg("value_type_id", valueTypeHint),
			mcp.WithBoolean("input_type", mcp.Description("true = INPUT parameter (passed to method), false = OUTPUT parameter (returned from method as dict key)")),
			mcp.WithString("default_value", mcp.Description("Default value")),
			mcp.WithString("description", mcp.Description("Description")),
			mcp.WithBoolean("is_hidden", mcp.Description("Is hidden")),
			mcp.WithNumber("default_dict_value_id", mcp.Description("Default dictionary value ID (for dictionary properties)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			methodID, err := req.RequireInt("method_id")
			if err != nil {
				return nil, err
			}
			label, err := req.RequireString("label")
			if err != nil {
				return nil, err
			}
			valueType, err := req.RequireInt("value_type_id")
			if err != nil {
				return nil, err
			}
			body := gims.Object{
				"method_id":     methodID,
				"label":         label,
				"value_type_id": valueType,
				"input_type":    req.GetBool("input_type", true),
				"default_value": req.GetString("default_value", ""),
				"description":   req.GetString("description", ""),
				"is_hidden":     req.GetBool("is_hidden", false),
			}
			if v, ok := req.GetArguments()["default_dict_value_id"]; ok {
				body["default_dict_value_id"] = v
			}
			return h.api.Create(ctx, gims.PathMethodParams, body)
		}),
		h.updateTool(mcp.NewTool("update_method_parameter",
			mcp.WithDescription("Update a method parameter"),
			idArg("parameter_id", "Parameter ID"),
			mcp.WithString("label", mcp.Description("New label")),
			mcp.WithString("default_value", mcp.Description("New default value")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithBoolean("is_hidden", mcp.Description("Is hidden")),
		), gims.PathMethodParams, "parameter_id", "", "label", "default_value", "description", "is_hidden"),
		h.deleteTool("delete_method_parameter", "Delete a method parameter",
			gims.PathMethodParams, "parameter_id", "Parameter ID", "Parameter deleted successfully"),
	}
}

// searchDatasourceTypes matches type names and the code of their methods.
func (h *Handlers) searchDatasourceTypes(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}
	scope := req.GetString("search_in", "name")
	caseSensitive := req.GetBool("case_sensitive", false)

	types, err := h.api.List(ctx, gims.PathDSTypes, nil)
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
			methods, err := h.api.List(ctx, gims.PathDSTypeMethods, idQuery("mds_type_id", id))
			if err != nil {
				return nil, err
			}
			hits := SearchField(methods, query, "code", caseSensitive, false)
			if len(hits) == 0 {
				continue
			}
			matched := make([]gims.Object, 0, len(hits))
			for _, m := range hits {
				matched = append(matched, gims.Object{"id": m["id"], "name": m["name"], "match_count": m["match_count"]})
			}
			desc, _ := t["description"].(string)
			results = append(results, gims.Object{
				"id":              t["id"],
				"name":            t["name"],
				"description":     desc,
				"matched_in":      "code",
				"matched_methods": matched,
			})
			seen[id] = true
		}
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}
