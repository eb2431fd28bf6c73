package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"callrec/internal/archive"
)

var inspectTop int

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive.zip>",
	Short: "Show an archive's manifest and models",
	Long: `Show the manifest of a model archive and, for each type, the number of
patterns and methods and the most likely patterns.

Examples:
  callrec inspect swt-3.7.0.zip
  callrec inspect swt-3.7.0.zip --top 5 --format json`,
	Args: cobra.ExactArgs(1),
	Run:  runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectTop, "top", 3, "Patterns to show per type")
	rootCmd.AddCommand(inspectCmd)
}

// InspectResponseCLI describes an archive.
type InspectResponseCLI struct {
	Path          string        `json:"path"`
	Coordinate    string        `json:"coordinate"`
	FormatVersion int           `json:"formatVersion"`
	BuiltAt       time.Time     `json:"builtAt"`
	Types         []TypeSummary `json:"types"`
}

// TypeSummary describes one model.
type TypeSummary struct {
	TypeID      string         `json:"typeId"`
	Patterns    int            `json:"patterns"`
	Methods     int            `json:"methods"`
	TopPatterns []PatternPrior `json:"topPatterns,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// PatternPrior is a pattern with its prior probability.
type PatternPrior struct {
	Pattern string  `json:"pattern"`
	Prior   float64 `json:"prior"`
}

func runInspect(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	logger, factory := newLogger(cmd, cfg)
	defer factory.Close()

	a, err := archive.Open(args[0], archive.Options{Capacity: 1, Logger: logger})
	if err != nil {
		fail("%v", err)
	}
	defer a.Close()

	printResponse(inspectArchive(a, inspectTop))
}

// inspectArchive borrows each model once to summarise it.
func inspectArchive(a *archive.Archive, top int) *InspectResponseCLI {
	m := a.Manifest()
	resp := &InspectResponseCLI{
		Path:          a.Path(),
		Coordinate:    m.Coordinate,
		FormatVersion: m.FormatVersion,
		BuiltAt:       m.BuiltAt,
	}
	for _, typeID := range a.Types() {
		summary := TypeSummary{TypeID: typeID}
		lease, err := a.AcquireModel(typeID)
		if err != nil {
			summary.Error = err.Error()
			resp.Types = append(resp.Types, summary)
			continue
		}
		if mdl, err := lease.Model(); err == nil {
			net := mdl.Network()
			summary.Patterns = len(net.Patterns())
			summary.Methods = len(net.Methods())
			summary.TopPatterns = topPatterns(net.Patterns(), net.Priors(), top)
		}
		_ = a.ReleaseModel(lease)
		resp.Types = append(resp.Types, summary)
	}
	return resp
}

func topPatterns(patterns []string, priors []float64, n int) []PatternPrior {
	out := make([]PatternPrior, len(patterns))
	for i := range patterns {
		out[i] = PatternPrior{Pattern: patterns[i], Prior: priors[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Prior > out[j].Prior })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func formatInspectHuman(resp *InspectResponseCLI) (string, error) {
	var b headerBuilder
	b.header(fmt.Sprintf("Archive %s", resp.Coordinate))
	b.line("Path:     %s", resp.Path)
	b.line("Format:   v%d", resp.FormatVersion)
	b.line("Built:    %s", resp.BuiltAt.Format(time.RFC3339))
	b.line("Types:    %d", len(resp.Types))
	for _, t := range resp.Types {
		b.line("")
		if t.Error != "" {
			b.line("✗ %s: %s", t.TypeID, t.Error)
			continue
		}
		b.line("%s (%d patterns, %d methods)", t.TypeID, t.Patterns, t.Methods)
		for _, p := range t.TopPatterns {
			b.line("  %5.1f%%  %s", p.Prior*100, p.Pattern)
		}
	}
	return b.String(), nil
}
