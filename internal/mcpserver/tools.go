package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/reaper/internal/output"
	"github.com/panbanda/reaper/internal/service/analysis"
	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
	"github.com/panbanda/reaper/pkg/config"
)

// AnalyzeInput is the input of analyze_reachability and the base of explain_symbol.
type AnalyzeInput struct {
	Path         string   `json:"path,omitempty" jsonschema:"Directory to analyze. Defaults to the current directory."`
	Format       string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
	Mode         string   `json:"mode,omitempty" jsonschema:"Entry mode: binary (default) or library. Library mode treats public symbols as roots."`
	IncludeTests bool     `json:"include_tests,omitempty" jsonschema:"Treat test functions as roots and report unused test helpers."`
	EntryNames   []string `json:"entry_names,omitempty" jsonschema:"Extra symbol names or qualified paths to treat as roots."`
	Verbose      bool     `json:"verbose,omitempty" jsonschema:"Include unresolved and ambiguous reference diagnostics."`
	// Result filters. explain_symbol ignores them.
	Type          string  `json:"type,omitempty" jsonschema:"Only report dead functions or types: functions or types. Default both."`
	MinConfidence float64 `json:"min_confidence,omitempty" jsonschema:"Minimum confidence threshold (0.0-1.0). Default 0."`
	Sort          string  `json:"sort,omitempty" jsonschema:"Finding order: group (default, chain order) or confidence (most certain first)."`
	Limit         int     `json:"limit,omitempty" jsonschema:"Maximum findings to return after sorting. Default all."`
}

// ExplainInput names the symbol to explain.
type ExplainInput struct {
	AnalyzeInput
	Symbol string `json:"symbol" jsonschema:"Symbol id, qualified path such as Circle::new, or unique short name."`
}

func getPath(input AnalyzeInput) string {
	if input.Path == "" {
		return "."
	}
	return input.Path
}

func getFormat(input AnalyzeInput) output.Format {
	switch input.Format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

// findingFilter converts the filter fields of input.
func findingFilter(input AnalyzeInput) (deadcode.Filter, error) {
	kind, err := deadcode.ParseFindingKind(input.Type)
	if err != nil {
		return deadcode.Filter{}, err
	}
	order, err := deadcode.ParseSortOrder(input.Sort)
	if err != nil {
		return deadcode.Filter{}, err
	}
	filter := deadcode.Filter{Kind: kind, MinConfidence: input.MinConfidence, Sort: order, Limit: input.Limit}
	return filter, filter.Validate()
}

func formatOutput(data output.Renderable, format output.Format) (string, error) {
	var buf bytes.Buffer
	if err := output.NewWriterFormatter(format, &buf, false).Output(data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toolResult(data output.Renderable, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

// configFor returns the configuration for one call with the input overrides applied.
func (s *Server) configFor(path string, input AnalyzeInput) (*config.Config, error) {
	var cfg *config.Config
	if s.config != nil {
		c := *s.config
		cfg = &c
	} else {
		loaded, _, err := config.LoadOrDefault(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if input.Mode != "" {
		cfg.Analysis.Mode = input.Mode
	}
	if input.IncludeTests {
		cfg.Analysis.IncludeTests = true
	}
	if len(input.EntryNames) > 0 {
		cfg.Entry.Names = append(append([]string{}, cfg.Entry.Names...), input.EntryNames...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Server) analyze(ctx context.Context, input AnalyzeInput) (*analysis.Result, error) {
	path := getPath(input)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(path + " is not a directory")
	}
	cfg, err := s.configFor(path, input)
	if err != nil {
		return nil, err
	}
	svc := analysis.New(analysis.WithConfig(cfg), analysis.WithLogger(s.logger))
	res, err := svc.Analyze(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.FileErrors.HasErrors() {
		for _, e := range res.FileErrors.Errors {
			s.logger.Warn("file skipped", "path", e.Path, "error", e.Err)
		}
	}
	return res, nil
}

func (s *Server) handleAnalyzeReachability(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, any, error) {
	filter, err := findingFilter(input)
	if err != nil {
		return toolError(err.Error())
	}
	result, err := s.analyze(ctx, input)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.NewDeadCode(result.Report, input.Verbose).WithFilter(filter), getFormat(input))
}

func (s *Server) handleExplainSymbol(ctx context.Context, req *mcp.CallToolRequest, input ExplainInput) (*mcp.CallToolResult, any, error) {
	if input.Symbol == "" {
		return toolError("symbol is required")
	}
	result, err := s.analyze(ctx, input.AnalyzeInput)
	if err != nil {
		return toolError(err.Error())
	}
	exp, err := result.Explain(input.Symbol)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.NewExplanation(exp), getFormat(input.AnalyzeInput))
}
