package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
	"github.com/gelarm/gims-automation-mcp-server/internal/metrics"
)

func (h *Handlers) referenceTools() []Tool {
	return []Tool{
		h.tool(mcp.NewTool("list_value_types",
			mcp.WithDescription("List all available value types for properties and parameters. Use this to get value_type_id when creating properties."),
		), func(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
			types, err := h.reference(ctx, gims.PathValueTypes)
			if err != nil {
				return nil, err
			}
			return map[string]any{"value_types": types}, nil
		}),
		h.tool(mcp.NewTool("list_property_sections",
			mcp.WithDescription("List all available property sections. Use this to get section_name_id when creating properties."),
		), func(ctx context.Context, _ mcp.CallToolRequest) (any, error) {
			sections, err := h.reference(ctx, gims.PathPropertySections)
			if err != nil {
				return nil, err
			}
			return map[string]any{"property_sections": sections}, nil
		}),
	}
}

// reference serves a static lookup table from the TTL cache.
func (h *Handlers) reference(ctx context.Context, path string) ([]gims.Object, error) {
	if cached, ok := h.refs.Get(path); ok {
		metrics.IncCacheAccess("references", "hit")
		return cached, nil
	}
	metrics.IncCacheAccess("references", "miss")

	items, err := h.api.List(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	h.refs.Put(path, items)
	return items, nil
}
