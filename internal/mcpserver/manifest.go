package mcpserver

import (
	"encoding/json"
	"strings"
)

const manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"

// Manifest is the MCP registry server.json document.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

// Repository points at the source repository.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package describes one way to install and launch the server.
type Package struct {
	RegistryType         string        `json:"registryType"`
	Identifier           string        `json:"identifier"`
	PackageArguments     []Argument    `json:"packageArguments,omitempty"`
	EnvironmentVariables []EnvVariable `json:"environmentVariables,omitempty"`
	Transport            Transport     `json:"transport"`
}

// Argument is a command-line argument passed to the package.
type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// EnvVariable is an environment variable the server reads.
type EnvVariable struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsRequired  bool   `json:"isRequired"`
}

// Transport names how clients talk to the server.
type Transport struct {
	Type string `json:"type"`
}

// GenerateManifest returns server.json for the given release. A leading "v"
// from a git tag is dropped; an empty version becomes 0.0.0.
func GenerateManifest(version string) ([]byte, error) {
	version = strings.TrimPrefix(version, "v")
	if version == "" || version == "dev" {
		version = "0.0.0"
	}

	m := Manifest{
		Schema:      manifestSchema,
		Name:        "io.github.panbanda/reaper",
		Description: "Reachability-based dead code detection for Rust and Go",
		Version:     version,
		Repository:  &Repository{URL: "https://github.com/panbanda/reaper", Source: "github"},
		Packages: []Package{{
			RegistryType:     "oci",
			Identifier:       "ghcr.io/panbanda/reaper:" + version,
			PackageArguments: []Argument{{Type: "positional", Value: "mcp"}},
			EnvironmentVariables: []EnvVariable{{
				Name:        "REAPER_CONFIG",
				Description: "Config file applied to every analysis instead of the per-directory reaper.toml",
			}},
			Transport: Transport{Type: "stdio"},
		}},
	}
	return json.MarshalIndent(m, "", "  ")
}
