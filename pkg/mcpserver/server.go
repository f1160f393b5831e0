// Package mcpserver exposes the read-only skill catalog as Model Context
// Protocol tools so agents can discover approved skills.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
	"github.com/jingkaihe/skillhub/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "skillhub"

const (
	ToolListSkills = "list_skills"
	ToolGetSkill   = "get_skill"
)

// Catalog is the part of the registry the tools read.
type Catalog interface {
	List(q registry.Query) ([]skills.Skill, error)
	Get(id string) (skills.Skill, bool)
}

// New creates an MCP server over catalog.
func New(catalog Catalog) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(Tools(catalog)...)
	return s
}

// Tools returns the catalog tools with their handlers.
func Tools(catalog Catalog) []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolListSkills,
				mcp.WithDescription("List approved skills in the marketplace, most downloaded first unless sort says otherwise."),
				mcp.WithString("query", mcp.Description("Case-insensitive text matched against title, description and tags")),
				mcp.WithString("category", mcp.Description("Exact category name"), mcp.Enum(skills.Categories...)),
				mcp.WithString("tag", mcp.Description("Glob matched against each tag, e.g. ci*")),
				mcp.WithString("sort", mcp.Description("Ordering of the results"),
					mcp.Enum(string(registry.SortPopular), string(registry.SortRating), string(registry.SortNewest))),
			),
			Handler: listSkills(catalog),
		},
		{
			Tool: mcp.NewTool(ToolGetSkill,
				mcp.WithDescription("Get one skill, including its SKILL.md content and evaluation scores."),
				mcp.WithString("id", mcp.Required(), mcp.Description("Skill id")),
			),
			Handler: getSkill(catalog),
		},
	}
}

func listSkills(catalog Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sort := registry.SortPopular
		if raw := req.GetString("sort", ""); raw != "" {
			parsed, err := registry.ParseSort(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			sort = parsed
		}

		q := registry.MarketplaceQuery(req.GetString("query", ""), req.GetString("category", ""), req.GetString("tag", ""), sort)
		list, err := catalog.List(q)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if list == nil {
			list = []skills.Skill{}
		}

		logger.G(ctx).WithField("results", len(list)).Debug("mcp list_skills")
		return jsonResult(map[string]any{"skills": list, "total": len(list)})
	}
}

func getSkill(catalog Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		skill, ok := catalog.Get(id)
		if !ok {
			return mcp.NewToolResultError("skill not found: " + id), nil
		}
		return jsonResult(skill)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves s over stdin and stdout until ctx is cancelled or the
// input closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, stdin io.Reader, stdout io.Writer) error {
	errLog := logger.G(ctx).WriterLevel(logrus.ErrorLevel)
	defer errLog.Close()

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(errLog, "", 0))
	if err := stdio.Listen(ctx, stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "mcp server failed")
	}
	return nil
}
