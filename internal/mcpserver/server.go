// Package mcpserver exposes the diagnostic parser, the file-block
// extractor, the tree writer, and the build invoker as MCP tools over
// stdio, so an agent can drive its own fix loop.
package mcpserver

import (
	"context"

	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Server holds the dependencies shared by the tool handlers.
type Server struct {
	builder fixloop.Builder
	// root is used when a tool call names no project path.
	root string
	log  zerolog.Logger
}

// New returns a Server that builds with builder and defaults to root.
func New(builder fixloop.Builder, root string, log zerolog.Logger) *Server {
	return &Server{builder: builder, root: root, log: log.With().Str("component", "mcp").Logger()}
}

// Run starts the ONYX MCP server over stdio.
// It blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context, version string) error {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "onyx",
			Version: version,
		},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "parse_diagnostics",
		Description: "Parse raw xcodebuild or swiftc output into structured diagnostics (severity, file, line, column, message). Banner and summary lines are dropped. Example: parse_diagnostics(output: \"Sources/Foo.swift:12:5: error: missing return\")",
	}, s.handleParseDiagnostics)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_file_blocks",
		Description: "Extract the files from a markdown reply where each file is a heading naming its path followed by a fenced code block. Returns the blocks in order without writing anything.",
	}, s.handleExtractFileBlocks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_file_blocks",
		Description: "Extract file blocks from markdown and write them into the project. Paths are relative to the project root; any path escaping the root rejects the whole batch and nothing is written.",
	}, s.handleApplyFileBlocks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_project",
		Description: "Build the Xcode project with xcodebuild and return whether it succeeded plus the parsed diagnostics. Runs xcodegen first when only project.yml exists.",
	}, s.handleBuildProject)

	s.log.Info().Str("root", s.root).Msg("mcp server starting")
	return server.Run(ctx, &mcp.StdioTransport{})
}

var _ fixloop.Builder = (*xcode.Builder)(nil)
