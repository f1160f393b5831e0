package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/mcpserver"
	"github.com/jingkaihe/skillhub/pkg/presenter"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol commands",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the skill catalog to MCP clients over stdio",
	Long: `Start an MCP (Model Context Protocol) server on stdin/stdout exposing
read-only catalog tools: list_skills and get_skill.

Register it with an MCP client as the command "skillhub mcp serve". Logs are
written to stderr so they never interleave with the protocol.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runMCPServeCommand(cmd.Context())
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
}

// remoteMCPCatalog serves the MCP tools from a running server.
type remoteMCPCatalog struct {
	cat catalog
	ctx context.Context
}

func (r remoteMCPCatalog) List(q registry.Query) ([]skills.Skill, error) {
	return r.cat.Marketplace(r.ctx, q)
}

func (r remoteMCPCatalog) Get(id string) (skills.Skill, bool) {
	s, err := r.cat.Get(r.ctx, id)
	return s, err == nil
}

func runMCPServeCommand(ctx context.Context) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	remote, _ := rootCmd.PersistentFlags().GetBool("remote")
	cat, err := openCatalog(ctx, remote)
	if err != nil {
		presenter.Error(err, "failed to open catalog")
		os.Exit(1)
	}
	defer cat.Close()

	var source mcpserver.Catalog
	if local, ok := cat.(*localCatalog); ok {
		source = local.registry
	} else {
		source = remoteMCPCatalog{cat: cat, ctx: ctx}
	}

	logger.G(ctx).WithField("remote", remote).Info("starting MCP server on stdio")
	if err := mcpserver.ServeStdio(ctx, mcpserver.New(source), os.Stdin, os.Stdout); err != nil {
		presenter.Error(err, "MCP server failed")
		os.Exit(1)
	}
}
