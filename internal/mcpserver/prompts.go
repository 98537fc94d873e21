package mcpserver

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// promptFrontmatter is parsed from YAML frontmatter in prompt files.
type promptFrontmatter struct {
	Description string           `yaml:"description"`
	Arguments   []promptArgument `yaml:"arguments"`
}

type promptArgument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default"`
}

// promptDefinition is one embedded prompt.
type promptDefinition struct {
	Name        string
	Description string
	Arguments   []promptArgument
	Body        string
}

// loadPrompts reads every embedded prompt, sorted by name.
func loadPrompts() ([]promptDefinition, error) {
	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil, err
	}

	var defs []promptDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFiles.ReadFile(path.Join("prompts", entry.Name()))
		if err != nil {
			return nil, err
		}
		fm, body := parseFrontmatter(content)
		defs = append(defs, promptDefinition{
			Name:        strings.TrimSuffix(entry.Name(), ".md"),
			Description: fm.Description,
			Arguments:   fm.Arguments,
			Body:        body,
		})
	}
	return defs, nil
}

// registerPrompts registers all prompts from embedded markdown files.
func (s *Server) registerPrompts() {
	defs, err := loadPrompts()
	if err != nil {
		s.logger.Warn("prompts unavailable", "error", err)
		return
	}
	for _, def := range defs {
		prompt := &mcp.Prompt{
			Name:        def.Name,
			Description: def.Description,
		}
		for _, arg := range def.Arguments {
			prompt.Arguments = append(prompt.Arguments, &mcp.PromptArgument{
				Name:        arg.Name,
				Description: arg.Description,
			})
		}
		s.server.AddPrompt(prompt, makePromptHandler(def))
	}
}

// parseFrontmatter extracts YAML frontmatter and returns it with the body.
func parseFrontmatter(content []byte) (promptFrontmatter, string) {
	var fm promptFrontmatter
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return fm, string(content)
	}

	rest := content[4:]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end == -1 {
		return fm, string(content)
	}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return promptFrontmatter{}, string(content)
	}
	return fm, strings.TrimPrefix(string(rest[end+5:]), "\n")
}

// substituteArg replaces {{key}} in text with the argument value or def.
func substituteArg(text, key string, args map[string]string, def string) string {
	val := args[key]
	if val == "" {
		val = def
	}
	return strings.ReplaceAll(text, "{{"+key+"}}", val)
}

// buildToolCallSuggestions lists the tool calls a prompt expects, with its
// arguments filled in.
func buildToolCallSuggestions(name string, args map[string]string) []string {
	p := args["path"]
	if p == "" {
		p = "."
	}
	switch name {
	case "dead-code-review":
		return []string{
			fmt.Sprintf(`analyze_reachability {"path": %q, "format": "markdown"}`, p),
			fmt.Sprintf(`explain_symbol {"path": %q, "symbol": "<finding id>"}`, p),
		}
	case "explain-liveness":
		sym := args["symbol"]
		if sym == "" {
			sym = "<symbol>"
		}
		return []string{
			fmt.Sprintf(`explain_symbol {"path": %q, "symbol": %q, "format": "markdown"}`, p, sym),
		}
	default:
		return nil
	}
}

func makePromptHandler(def promptDefinition) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}

		text := def.Body
		for _, arg := range def.Arguments {
			text = substituteArg(text, arg.Name, args, arg.Default)
		}
		if calls := buildToolCallSuggestions(def.Name, args); len(calls) > 0 {
			text += "\n## Suggested Tool Calls\n\n"
			for _, c := range calls {
				text += "- `" + c + "`\n"
			}
		}

		return &mcp.GetPromptResult{
			Description: def.Description,
			Messages: []*mcp.PromptMessage{
				{
					Role:    "user",
					Content: &mcp.TextContent{Text: text},
				},
			},
		}, nil
	}
}
