package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/reaper/internal/logging"
	"github.com/panbanda/reaper/internal/output"
	"github.com/panbanda/reaper/internal/testutil"
	"github.com/panbanda/reaper/pkg/config"
)

func newTestServer() *Server {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	return NewServer("test", WithConfig(cfg), WithLogger(logging.Discard()))
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("handler returned nil result")
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

// TestServerCreation verifies the MCP server can be created without panicking.
func TestServerCreation(t *testing.T) {
	server := NewServer("1.0.0-test")
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
	if server.server == nil {
		t.Fatal("NewServer().server is nil")
	}
	if server.config != nil {
		t.Error("config should be loaded per call unless fixed")
	}
}

// TestToolDescriptions verifies all description functions carry the guidance sections.
func TestToolDescriptions(t *testing.T) {
	descriptions := map[string]func() string{
		"reachability": describeReachability,
		"explain":      describeExplain,
	}

	for name, fn := range descriptions {
		t.Run(name, func(t *testing.T) {
			desc := fn()
			for _, section := range []string{"USE WHEN:", "INTERPRETING RESULTS:", "METRICS RETURNED:"} {
				if !strings.Contains(desc, section) {
					t.Errorf("%s description missing %s section", name, section)
				}
			}
		})
	}
}

func TestGetPath(t *testing.T) {
	if got := getPath(AnalyzeInput{}); got != "." {
		t.Errorf("getPath() = %q, want .", got)
	}
	if got := getPath(AnalyzeInput{Path: "/foo"}); got != "/foo" {
		t.Errorf("getPath() = %q, want /foo", got)
	}
}

func TestGetFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected output.Format
	}{
		{"", output.FormatTOON},
		{"toon", output.FormatTOON},
		{"json", output.FormatJSON},
		{"markdown", output.FormatMarkdown},
		{"md", output.FormatMarkdown},
		{"unknown", output.FormatTOON},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := getFormat(AnalyzeInput{Format: tt.input}); got != tt.expected {
				t.Errorf("getFormat(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToolError(t *testing.T) {
	result, data, err := toolError("something broke")
	if err != nil {
		t.Fatalf("toolError returned error: %v", err)
	}
	if data != nil {
		t.Error("toolError should return nil data")
	}
	if !result.IsError {
		t.Error("toolError result should have IsError set")
	}
	if got := resultText(t, result); got != "Error: something broke" {
		t.Errorf("toolError text = %q", got)
	}
}

func TestInputStructTags(t *testing.T) {
	typ := reflect.TypeOf(AnalyzeInput{})
	for i := range typ.NumField() {
		field := typ.Field(i)
		if field.Tag.Get("json") == "" {
			t.Errorf("AnalyzeInput.%s has no json tag", field.Name)
		}
		if field.Tag.Get("jsonschema") == "" {
			t.Errorf("AnalyzeInput.%s has no jsonschema description", field.Name)
		}
	}
	sym, ok := reflect.TypeOf(ExplainInput{}).FieldByName("Symbol")
	if !ok || sym.Tag.Get("json") != "symbol" {
		t.Error("ExplainInput.Symbol should be serialized as symbol")
	}
}

func TestHandleAnalyzeReachability(t *testing.T) {
	root := testutil.RustProject(t)
	s := newTestServer()

	t.Run("json", func(t *testing.T) {
		result, _, err := s.handleAnalyzeReachability(context.Background(), nil, AnalyzeInput{Path: root, Format: "json"})
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		text := resultText(t, result)
		if result.IsError {
			t.Fatalf("handler returned tool error: %s", text)
		}

		var report struct {
			Summary struct {
				DeadSymbols int `json:"dead_symbols"`
			} `json:"summary"`
			Private []struct {
				ID string `json:"id"`
			} `json:"private"`
		}
		if err := json.Unmarshal([]byte(text), &report); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if report.Summary.DeadSymbols == 0 {
			t.Error("expected dead symbols in the sample project")
		}
		found := false
		for _, f := range report.Private {
			if f.ID == "src/main.rs::fetch_remote" {
				found = true
			}
		}
		if !found {
			t.Error("fetch_remote should be reported as dead")
		}
	})

	t.Run("toon", func(t *testing.T) {
		result, _, err := s.handleAnalyzeReachability(context.Background(), nil, AnalyzeInput{Path: root})
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if text := resultText(t, result); result.IsError || !strings.Contains(text, "fetch_remote") {
			t.Errorf("unexpected toon output: %s", text)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		result, _, err := s.handleAnalyzeReachability(context.Background(), nil, AnalyzeInput{Path: root, Format: "markdown"})
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if text := resultText(t, result); !strings.Contains(text, "Dead Code Analysis") {
			t.Errorf("markdown output missing title: %s", text)
		}
	})

	t.Run("library mode roots public symbols", func(t *testing.T) {
		result, _, err := s.handleAnalyzeReachability(context.Background(), nil, AnalyzeInput{Path: root, Format: "json", Mode: "library"})
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if text := resultText(t, result); strings.Contains(text, "src/shapes.rs::shapes::Triangle") {
			t.Error("public Triangle should be a root in library mode")
		}
	})

	t.Run("filters", func(t *testing.T) {
		input := AnalyzeInput{Path: root, Format: "json", Type: "functions", Sort: "confidence", Limit: 1, MinConfidence: 0.5}
		result, _, err := s.handleAnalyzeReachability(context.Background(), nil, input)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		text := resultText(t, result)
		if result.IsError {
			t.Fatalf("handler returned tool error: %s", text)
		}
		var report struct {
			Shown   int `json:"shown"`
			Private []struct {
				Kind       string  `json:"kind"`
				Confidence float64 `json:"confidence"`
			} `json:"private"`
			Public []struct{} `json:"public"`
			Filter struct {
				Kind  string `json:"kind"`
				Limit int    `json:"limit"`
			} `json:"filter"`
		}
		if err := json.Unmarshal([]byte(text), &report); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if report.Shown != 1 || len(report.Private)+len(report.Public) != 1 {
			t.Errorf("shown = %d, want 1", report.Shown)
		}
		if report.Filter.Kind != "functions" || report.Filter.Limit != 1 {
			t.Errorf("filter = %+v", report.Filter)
		}
		for _, f := range report.Private {
			if f.Kind != "function" && f.Kind != "method" {
				t.Errorf("kind = %s, want a function", f.Kind)
			}
			if f.Confidence < 0.5 {
				t.Errorf("confidence %.2f below the threshold", f.Confidence)
			}
		}
	})

	t.Run("invalid filter", func(t *testing.T) {
		for _, input := range []AnalyzeInput{
			{Path: root, Type: "variables"},
			{Path: root, Sort: "name"},
			{Path: root, MinConfidence: 2},
			{Path: root, Limit: -3},
		} {
			result, _, err := s.handleAnalyzeReachability(context.Background(), nil, input)
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Errorf("%+v should be a tool error", input)
			}
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		result, _, err := s.handleAnalyzeReachability(context.Background(), nil, AnalyzeInput{Path: root, Mode: "plugin"})
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError {
			t.Error("an unknown mode should be a tool error")
		}
	})
}

func TestHandleAnalyzeReachabilityErrors(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name string
		path string
	}{
		{"missing directory", filepath.Join(t.TempDir(), "missing")},
		{"empty directory", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := s.handleAnalyzeReachability(context.Background(), nil, AnalyzeInput{Path: tt.path})
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Errorf("expected tool error, got %s", resultText(t, result))
			}
		})
	}
}

func TestHandleExplainSymbol(t *testing.T) {
	root := testutil.RustProject(t)
	s := newTestServer()

	t.Run("dead symbol", func(t *testing.T) {
		input := ExplainInput{AnalyzeInput: AnalyzeInput{Path: root, Format: "json"}, Symbol: "cycle_a"}
		result, _, err := s.handleExplainSymbol(context.Background(), nil, input)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		text := resultText(t, result)
		if result.IsError {
			t.Fatalf("handler returned tool error: %s", text)
		}
		var exp struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(text), &exp); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if exp.ID != "src/main.rs::cycle_a" || exp.Status != "dead" {
			t.Errorf("explanation = %+v", exp)
		}
	})

	t.Run("live symbol markdown", func(t *testing.T) {
		input := ExplainInput{AnalyzeInput: AnalyzeInput{Path: root, Format: "markdown"}, Symbol: "helper"}
		result, _, err := s.handleExplainSymbol(context.Background(), nil, input)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "Path From Root") {
			t.Errorf("markdown output missing path: %s", text)
		}
	})

	t.Run("missing symbol", func(t *testing.T) {
		result, _, err := s.handleExplainSymbol(context.Background(), nil, ExplainInput{AnalyzeInput: AnalyzeInput{Path: root}})
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError {
			t.Error("an empty symbol should be a tool error")
		}
	})

	t.Run("ambiguous symbol", func(t *testing.T) {
		input := ExplainInput{AnalyzeInput: AnalyzeInput{Path: root}, Symbol: "new"}
		result, _, err := s.handleExplainSymbol(context.Background(), nil, input)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError || !strings.Contains(resultText(t, result), "Circle::new") {
			t.Errorf("expected ambiguity error listing candidates, got %s", resultText(t, result))
		}
	})
}

func TestConfigFor(t *testing.T) {
	t.Run("loads config from the analyzed directory", func(t *testing.T) {
		dir := t.TempDir()
		testutil.WriteFile(t, filepath.Join(dir, "reaper.toml"), "[analysis]\nmode = \"library\"\n")
		s := NewServer("test", WithLogger(logging.Discard()))
		cfg, err := s.configFor(dir, AnalyzeInput{EntryNames: []string{"handler"}})
		if err != nil {
			t.Fatalf("configFor() error: %v", err)
		}
		if cfg.Analysis.Mode != "library" {
			t.Errorf("mode = %q, want library", cfg.Analysis.Mode)
		}
		if len(cfg.Entry.Names) != 1 || cfg.Entry.Names[0] != "handler" {
			t.Errorf("entry names = %v", cfg.Entry.Names)
		}
	})

	t.Run("overrides do not leak into the fixed config", func(t *testing.T) {
		s := newTestServer()
		if _, err := s.configFor(".", AnalyzeInput{Mode: "library", IncludeTests: true}); err != nil {
			t.Fatalf("configFor() error: %v", err)
		}
		if s.config.Analysis.Mode != "binary" || s.config.Analysis.IncludeTests {
			t.Error("fixed config was modified")
		}
	})
}

func TestGenerateManifest(t *testing.T) {
	data, err := GenerateManifest("1.2.3")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if m.Version != "1.2.3" || m.Name != "io.github.panbanda/reaper" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Packages) != 1 || m.Packages[0].Identifier != "ghcr.io/panbanda/reaper:1.2.3" {
		t.Errorf("packages = %+v", m.Packages)
	}

	data, err = GenerateManifest("")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}
	if !strings.Contains(string(data), `"version": "0.0.0"`) {
		t.Error("empty version should default to 0.0.0")
	}

	data, err = GenerateManifest("v2.0.1")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}
	m = Manifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Version != "2.0.1" {
		t.Errorf("tag prefix not stripped: %q", m.Version)
	}
	env := m.Packages[0].EnvironmentVariables
	if len(env) != 1 || env[0].Name != "REAPER_CONFIG" || env[0].IsRequired {
		t.Errorf("environment variables = %+v", env)
	}
}

func TestPromptDefinitions(t *testing.T) {
	defs, err := loadPrompts()
	if err != nil {
		t.Fatalf("loadPrompts() error: %v", err)
	}
	if len(defs) == 0 {
		t.Fatal("no prompt definitions found")
	}
	for _, def := range defs {
		t.Run(def.Name, func(t *testing.T) {
			if def.Description == "" {
				t.Error("prompt description is empty")
			}
			if strings.TrimSpace(def.Body) == "" {
				t.Error("prompt body is empty")
			}
			if strings.HasPrefix(def.Body, "---") {
				t.Error("frontmatter was not stripped")
			}
		})
	}
}

func TestPromptHandler(t *testing.T) {
	defs, err := loadPrompts()
	if err != nil {
		t.Fatalf("loadPrompts() error: %v", err)
	}
	for _, def := range defs {
		t.Run(def.Name, func(t *testing.T) {
			req := &mcp.GetPromptRequest{
				Params: &mcp.GetPromptParams{
					Name:      def.Name,
					Arguments: map[string]string{"path": "/srv/app", "symbol": "Circle::new"},
				},
			}
			result, err := makePromptHandler(def)(context.Background(), req)
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if len(result.Messages) == 0 {
				t.Fatal("result has no messages")
			}
			msg := result.Messages[0]
			if msg.Role != "user" {
				t.Errorf("expected role 'user', got %q", msg.Role)
			}
			text := msg.Content.(*mcp.TextContent).Text
			if strings.Contains(text, "{{") {
				t.Errorf("unsubstituted placeholder in %q", text)
			}
			if !strings.Contains(text, "/srv/app") {
				t.Error("path argument should be substituted")
			}
			if !strings.Contains(text, "Suggested Tool Calls") {
				t.Error("message should contain suggested tool calls section")
			}
		})
	}
}

func TestSubstituteArg(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		args     map[string]string
		expected string
	}{
		{"use provided value", "analyze {{path}}", map[string]string{"path": "src"}, "analyze src"},
		{"use default when missing", "analyze {{path}}", map[string]string{}, "analyze ."},
		{"use default when empty", "analyze {{path}}", map[string]string{"path": ""}, "analyze ."},
		{"no placeholder unchanged", "nothing here", map[string]string{"path": "src"}, "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteArg(tt.text, "path", tt.args, "."); got != tt.expected {
				t.Errorf("substituteArg() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBuildToolCallSuggestions(t *testing.T) {
	for _, name := range []string{"dead-code-review", "explain-liveness"} {
		t.Run(name, func(t *testing.T) {
			suggestions := buildToolCallSuggestions(name, map[string]string{"path": "."})
			if len(suggestions) == 0 {
				t.Fatalf("buildToolCallSuggestions(%q) returned no suggestions", name)
			}
			for _, s := range suggestions {
				if !strings.HasPrefix(s, "analyze_reachability") && !strings.HasPrefix(s, "explain_symbol") {
					t.Errorf("suggestion %q doesn't name a reaper tool", s)
				}
			}
		})
	}
	if buildToolCallSuggestions("unknown", nil) != nil {
		t.Error("unknown prompts have no suggestions")
	}
}
