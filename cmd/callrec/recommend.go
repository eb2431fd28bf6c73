package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"callrec/internal/config"
	"callrec/internal/index"
	"callrec/internal/metrics"
	"callrec/internal/recommend"
	"callrec/internal/resolve"
	"callrec/internal/store"
)

var (
	recInvoked     []string
	recOverridden  []string
	recLimit       int
	recMinPercent  float64
	recShowMetrics bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <typeId>",
	Short: "Propose methods to call on a receiver",
	Long: `Propose the methods most likely to be called next on a receiver of the
given type, given the methods already invoked on it and those overridden by
the enclosing class.

Examples:
  callrec recommend org/eclipse/swt/widgets/Button \
      --symbolic-name org.eclipse.swt --version 3.7.0 \
      --invoked '<init>,setText'
  callrec recommend org/eclipse/swt/widgets/Button --jar swt.jar --metrics`,
	Args: cobra.ExactArgs(1),
	Run:  runRecommend,
}

func init() {
	addDependencyFlags(recommendCmd)
	recommendCmd.Flags().StringSliceVar(&recInvoked, "invoked", nil, "Methods already invoked on the receiver")
	recommendCmd.Flags().StringSliceVar(&recOverridden, "overridden", nil, "Methods overridden by the enclosing class")
	recommendCmd.Flags().IntVar(&recLimit, "limit", 0, "Maximum proposals (default recommend.maxProposals)")
	recommendCmd.Flags().Float64Var(&recMinPercent, "min", 0, "Minimum probability in percent (default recommend.minProbability)")
	recommendCmd.Flags().BoolVar(&recShowMetrics, "metrics", false, "Print store metrics to stderr")
	rootCmd.AddCommand(recommendCmd)
}

// RecommendResponseCLI lists proposals.
type RecommendResponseCLI struct {
	TypeID     string        `json:"typeId"`
	Dependency string        `json:"dependency"`
	Proposals  []ProposalCLI `json:"proposals"`
	Store      store.Stats   `json:"store"`
	DurationMs int64         `json:"durationMs"`
}

// ProposalCLI is one proposal.
type ProposalCLI struct {
	Method      string  `json:"method"`
	Probability float64 `json:"probability"`
	Percent     string  `json:"percent"`
}

func runRecommend(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := mustLoadConfig()
	logger, factory := newLogger(cmd, cfg)
	defer factory.Close()

	dep, err := dependencyFromFlags()
	if err != nil {
		fail("%v", err)
	}

	idx, err := index.Open(cfg.Index.Path, logger)
	if err != nil {
		fail("%v", err)
	}
	defer idx.Close()

	reg := prometheus.NewRegistry()
	s := newStore(cfg, resolve.New(idx, logger), reg, logger)
	defer s.Close()

	opts := recommend.Options{
		MinProbability: minProbability(cfg.Recommend.MinProbability, recMinPercent, cmd.Flags().Changed("min")),
		MaxProposals:   cfg.Recommend.MaxProposals,
		Logger:         logger,
	}
	if recLimit > 0 {
		opts.MaxProposals = recLimit
	}

	key := store.LookupKey{TypeID: args[0], Dependency: dep}
	ev := recommend.StaticEvidence{Invoked: recInvoked, Overridden: recOverridden}
	proposals, err := recommend.New(s, opts).Recommend(newContext(), key, ev)
	if err != nil {
		fail("%v", err)
	}

	resp := &RecommendResponseCLI{
		TypeID:     key.TypeID,
		Dependency: dep.String(),
		Proposals:  make([]ProposalCLI, 0, len(proposals)),
		Store:      s.Stats(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, p := range proposals {
		resp.Proposals = append(resp.Proposals, ProposalCLI{Method: p.Method, Probability: p.Probability, Percent: p.Percent()})
	}
	printResponse(resp)

	if recShowMetrics {
		if err := writeMetrics(os.Stderr, reg); err != nil {
			fail("%v", err)
		}
	}
}

// minProbability picks the cutoff from --min (percent) or the config. An
// explicit 0 keeps every proposal.
func minProbability(configured, flagPercent float64, flagSet bool) float64 {
	p := configured
	if flagSet {
		p = flagPercent / 100
	}
	if p <= 0 {
		return recommend.NoThreshold
	}
	return p
}

// newStore wires a store to the configured repository.
func newStore(cfg *config.Config, resolver store.Resolver, reg prometheus.Registerer, logger *slog.Logger) *store.Store {
	return store.New(resolver, store.LocalRepository{Root: cfg.Repository.Root}, store.Options{
		Capacity:       cfg.Pool.Capacity,
		MaxResolutions: cfg.Store.MaxResolutions,
		ResolutionTTL:  cfg.ResolutionTTL(),
		Logger:         logger,
		Metrics:        metrics.New(reg),
	})
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func formatRecommendHuman(resp *RecommendResponseCLI) (string, error) {
	var b headerBuilder
	b.header(fmt.Sprintf("Proposals for %s", resp.TypeID))
	b.line("Dependency: %s", resp.Dependency)
	b.line("")
	if len(resp.Proposals) == 0 {
		b.line("No proposals.")
		return b.String(), nil
	}
	for i, p := range resp.Proposals {
		b.line("%2d. %-40s %5s", i+1, p.Method, p.Percent)
	}
	return b.String(), nil
}
