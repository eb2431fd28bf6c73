package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *BuildResponseCLI:
		return formatBuildHuman(v)
	case *InspectResponseCLI:
		return formatInspectHuman(v)
	case *IndexListResponseCLI:
		return formatIndexListHuman(v)
	case *IndexChangeResponseCLI:
		return formatIndexChangeHuman(v)
	case *ResolveResponseCLI:
		return formatResolveHuman(v)
	case *RecommendResponseCLI:
		return formatRecommendHuman(v)
	case *VersionResponseCLI:
		return v.Banner, nil
	default:
		return formatJSON(resp)
	}
}

// headerBuilder accumulates human output under an underlined title.
type headerBuilder struct {
	strings.Builder
}

func (b *headerBuilder) header(title string) {
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\n")
}

func (b *headerBuilder) line(format string, args ...interface{}) {
	fmt.Fprintf(b, format, args...)
	b.WriteString("\n")
}

func (b *headerBuilder) String() string {
	return strings.TrimRight(b.Builder.String(), "\n")
}

func formatBuildHuman(resp *BuildResponseCLI) (string, error) {
	var b headerBuilder
	b.header("Built " + resp.Coordinate)
	b.line("Path: %s", resp.Path)
	if resp.Registered {
		b.line("✓ Registered in index")
	}
	b.line("")
	for _, t := range resp.Types {
		b.line("  %-50s %4d patterns %4d methods", t.TypeID, t.Patterns, t.Methods)
	}
	return b.String(), nil
}
