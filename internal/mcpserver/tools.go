package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/XAVware/ONYX/internal/blocks"
	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/treewriter"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// parseInput is the input for the parse_diagnostics tool.
type parseInput struct {
	Output     string `json:"output" jsonschema:"Raw build output to parse"`
	ErrorsOnly bool   `json:"errors_only,omitempty" jsonschema:"Return only error severity diagnostics"`
}

type diagnosticsOutput struct {
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	Summary     string                   `json:"summary"`
}

func (s *Server) handleParseDiagnostics(ctx context.Context, req *mcp.CallToolRequest, input parseInput) (*mcp.CallToolResult, diagnosticsOutput, error) {
	ds := diagnostics.Parse(input.Output)
	if input.ErrorsOnly {
		ds = diagnostics.Filter(ds, diagnostics.SeverityError)
		if ds == nil {
			ds = []diagnostics.Diagnostic{}
		}
	}
	return nil, diagnosticsOutput{Diagnostics: ds, Summary: diagnostics.Summary(ds)}, nil
}

// extractInput is the input for the extract_file_blocks tool.
type extractInput struct {
	Markdown string `json:"markdown" jsonschema:"Markdown text containing path headings followed by fenced code blocks"`
}

type blocksOutput struct {
	Blocks []blocks.FileBlock `json:"blocks"`
	Count  int                `json:"count"`
}

func (s *Server) handleExtractFileBlocks(ctx context.Context, req *mcp.CallToolRequest, input extractInput) (*mcp.CallToolResult, blocksOutput, error) {
	fbs := blocks.Extract(input.Markdown)
	return nil, blocksOutput{Blocks: fbs, Count: len(fbs)}, nil
}

// applyInput is the input for the apply_file_blocks tool.
type applyInput struct {
	Markdown string `json:"markdown" jsonschema:"Markdown text containing path headings followed by fenced code blocks"`
	Path     string `json:"path,omitempty" jsonschema:"Project root. Defaults to the server working directory"`
}

type applyOutput struct {
	Written []string `json:"written"`
	Message string   `json:"message"`
}

func (s *Server) handleApplyFileBlocks(ctx context.Context, req *mcp.CallToolRequest, input applyInput) (*mcp.CallToolResult, applyOutput, error) {
	root, err := s.resolveRoot(input.Path)
	if err != nil {
		return nil, applyOutput{}, err
	}
	fbs := blocks.Extract(input.Markdown)
	if len(fbs) == 0 {
		return nil, applyOutput{Written: []string{}, Message: "No file blocks found; nothing written."}, nil
	}

	res, err := treewriter.Apply(root, fbs)
	if err != nil {
		return nil, applyOutput{}, err
	}
	s.log.Info().Strs("files", res.Written).Msg("applied file blocks")
	return nil, applyOutput{Written: res.Written, Message: fmt.Sprintf("Wrote %d files.", len(res.Written))}, nil
}

// buildInput is the input for the build_project tool.
type buildInput struct {
	Path          string `json:"path,omitempty" jsonschema:"Project root. Defaults to the server working directory"`
	Configuration string `json:"configuration,omitempty" jsonschema:"Debug or Release. Defaults to Debug"`
	Clean         bool   `json:"clean,omitempty" jsonschema:"Run a clean before building"`
}

type buildOutput struct {
	Succeeded   bool                     `json:"succeeded"`
	ExitCode    int                      `json:"exit_code"`
	TimedOut    bool                     `json:"timed_out,omitempty"`
	DurationSec float64                  `json:"duration_seconds"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	Summary     string                   `json:"summary"`
}

func (s *Server) handleBuildProject(ctx context.Context, req *mcp.CallToolRequest, input buildInput) (*mcp.CallToolResult, buildOutput, error) {
	root, err := s.resolveRoot(input.Path)
	if err != nil {
		return nil, buildOutput{}, err
	}
	cfg, err := xcode.ParseConfiguration(input.Configuration)
	if err != nil {
		return nil, buildOutput{}, err
	}

	res, err := s.builder.Build(ctx, root, cfg, input.Clean)
	if err != nil {
		if errors.Is(err, xcode.ErrProjectNotFound) {
			return nil, buildOutput{}, fmt.Errorf("no .xcworkspace, .xcodeproj or project.yml in %s", root)
		}
		return nil, buildOutput{}, err
	}

	ds := res.Diagnostics
	if ds == nil {
		ds = []diagnostics.Diagnostic{}
	}
	return nil, buildOutput{
		Succeeded:   res.Succeeded,
		ExitCode:    res.ExitCode,
		TimedOut:    res.TimedOut,
		DurationSec: res.Duration.Seconds(),
		Diagnostics: ds,
		Summary:     diagnostics.Summary(ds),
	}, nil
}

func (s *Server) resolveRoot(p string) (string, error) {
	if p == "" {
		p = s.root
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project path: %w", err)
	}
	return abs, nil
}
