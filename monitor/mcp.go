package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all monitor tools on an MCP server. Intervals
// cross the tool boundary as seconds.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerAddSource(srv)
	svc.registerListSources(srv)
	svc.registerUpdateSource(srv)
	svc.registerRemoveSource(srv)
	svc.registerForceCheck(srv)
	svc.registerReactivateSource(srv)
	svc.registerStats(srv)
	svc.registerRecentChanges(srv)
	svc.registerCheckHistory(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// registerTool wires a JSON-decoded handler as an MCP tool. Handler
// errors come back as tool errors, never transport errors.
func registerTool[Req any](srv *mcp.Server, tool *mcp.Tool, handle func(ctx context.Context, p *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var p Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := handle(ctx, &p)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (svc *Service) registerAddSource(srv *mcp.Server) {
	type req struct {
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
		Type     string `json:"source_type"`
		Interval int64  `json:"check_interval_seconds"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_add_source",
		Description: "Add a regulatory source to monitor",
		InputSchema: inputSchema(map[string]any{
			"name":                   map[string]any{"type": "string", "description": "Source name"},
			"endpoint":               map[string]any{"type": "string", "description": "URL to monitor"},
			"source_type":            map[string]any{"type": "string", "description": "Source type: feed, html, api"},
			"check_interval_seconds": map[string]any{"type": "integer", "description": "Check interval in seconds"},
		}, []string{"name", "endpoint"}),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		src := &Source{
			Name:          p.Name,
			Endpoint:      p.Endpoint,
			SourceType:    p.Type,
			CheckInterval: time.Duration(p.Interval) * time.Second,
			Active:        true,
		}
		if err := svc.AddSource(ctx, src); err != nil {
			return nil, err
		}
		return src, nil
	})
}

func (svc *Service) registerListSources(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "regwatch_list_sources",
		Description: "List all monitored regulatory sources with their health state",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, _ *req) (any, error) {
		return svc.ListSources(), nil
	})
}

func (svc *Service) registerUpdateSource(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
		Type     string `json:"source_type"`
		Interval int64  `json:"check_interval_seconds"`
		Active   *bool  `json:"active"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_update_source",
		Description: "Update a monitored source's name, endpoint, type, interval, or active flag",
		InputSchema: inputSchema(map[string]any{
			"source_id":              map[string]any{"type": "string"},
			"name":                   map[string]any{"type": "string"},
			"endpoint":               map[string]any{"type": "string"},
			"source_type":            map[string]any{"type": "string"},
			"check_interval_seconds": map[string]any{"type": "integer"},
			"active":                 map[string]any{"type": "boolean"},
		}, []string{"source_id"}),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		existing, err := svc.GetSource(p.SourceID)
		if err != nil {
			return nil, err
		}
		src := &Source{
			ID:            p.SourceID,
			Name:          p.Name,
			Endpoint:      p.Endpoint,
			SourceType:    p.Type,
			CheckInterval: time.Duration(p.Interval) * time.Second,
			Active:        existing.Active,
		}
		if p.Active != nil {
			src.Active = *p.Active
		}
		if err := svc.UpdateSource(ctx, src); err != nil {
			return nil, err
		}
		return svc.GetSource(p.SourceID)
	})
}

func (svc *Service) registerRemoveSource(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Purge    bool   `json:"purge"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_remove_source",
		Description: "Remove a monitored source; purge also deletes its stored changes",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string"},
			"purge":     map[string]any{"type": "boolean", "description": "Also delete stored changes"},
		}, []string{"source_id"}),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		if err := svc.RemoveSource(ctx, p.SourceID, p.Purge); err != nil {
			return nil, err
		}
		return map[string]string{"status": "removed", "source_id": p.SourceID}, nil
	})
}

func (svc *Service) registerForceCheck(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_force_check",
		Description: "Check one source immediately (works on suspended sources), or all active sources when source_id is omitted",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string", "description": "Source to check; omit for all"},
		}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		if p.SourceID != "" {
			if err := svc.ForceCheckOne(ctx, p.SourceID); err != nil {
				return nil, err
			}
			return map[string]string{"status": "checked", "source_id": p.SourceID}, nil
		}
		n, err := svc.ForceCheckAll(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "checked", "sources": n}, nil
	})
}

func (svc *Service) registerReactivateSource(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_reactivate_source",
		Description: "Clear a source's suspension so scheduled checks resume",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string"},
		}, []string{"source_id"}),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		if err := svc.ReactivateSource(p.SourceID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "reactivated", "source_id": p.SourceID}, nil
	})
}

func (svc *Service) registerStats(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "regwatch_stats",
		Description: "Get monitoring counters: checks, changes detected, duplicates avoided",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, _ *req) (any, error) {
		return svc.Stats(), nil
	})
}

func (svc *Service) registerRecentChanges(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Limit    int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_recent_changes",
		Description: "List recently detected regulatory changes, newest first",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string", "description": "Filter by source; omit for all"},
			"limit":     map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		return svc.RecentChanges(ctx, p.SourceID, p.Limit)
	})
}

func (svc *Service) registerCheckHistory(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Limit    int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "regwatch_check_history",
		Description: "List recent source checks with outcome and error detail, newest first",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string", "description": "Filter by source; omit for all"},
			"limit":     map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		return svc.CheckHistory(ctx, p.SourceID, p.Limit)
	})
}
