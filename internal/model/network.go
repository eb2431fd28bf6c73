// Package model implements the per-type usage model: a two-layer Bayesian
// network with one hidden pattern node and one boolean node per method.
//
// A Network is immutable once built and may be shared by any number of
// Model instances. A Model holds the evidence of one recommendation session.
//
// Usage:
//
//	net, err := model.Build("org/eclipse/swt/widgets/Composite", observations)
//	m := net.NewModel()
//	m.SetObservedMethod("layout()V")
//	for _, r := range m.Recommend() {
//		fmt.Println(r.Method, r.Probability)
//	}
package model

import (
	"sort"
)

const (
	// Epsilon is the smallest probability any table entry may hold.
	Epsilon = 0.0001
	// MinProbability is the clamped form of 0.
	MinProbability = Epsilon
	// MaxProbability is the clamped form of 1.
	MaxProbability = 1 - Epsilon

	// NoPattern is the pattern outcome standing for "no known usage pattern".
	NoPattern = "none"
)

// Network is the immutable structure of one type's model.
type Network struct {
	typeID   string
	patterns []string
	priors   []float64
	methods  []string
	index    map[string]int
	// cpt[m][p] = P(method m = true | pattern p)
	cpt [][]float64
}

func newNetwork(typeID string, patterns []string, priors []float64, methods []string, cpt [][]float64) *Network {
	index := make(map[string]int, len(methods))
	for i, m := range methods {
		index[m] = i
	}
	return &Network{
		typeID:   typeID,
		patterns: patterns,
		priors:   priors,
		methods:  methods,
		index:    index,
		cpt:      cpt,
	}
}

// TypeID returns the type this network predicts for.
func (n *Network) TypeID() string {
	return n.typeID
}

// Patterns returns the pattern outcome names; index 0 is NoPattern.
func (n *Network) Patterns() []string {
	return append([]string(nil), n.patterns...)
}

// Priors returns the prior of each pattern outcome, aligned with Patterns.
func (n *Network) Priors() []float64 {
	return append([]float64(nil), n.priors...)
}

// Methods returns the method identifiers, sorted.
func (n *Network) Methods() []string {
	return append([]string(nil), n.methods...)
}

// HasMethod reports whether method has a node in the network.
func (n *Network) HasMethod(method string) bool {
	_, ok := n.index[method]
	return ok
}

// PTrue returns P(method = true | pattern outcome p).
func (n *Network) PTrue(method string, p int) (float64, bool) {
	i, ok := n.index[method]
	if !ok || p < 0 || p >= len(n.patterns) {
		return 0, false
	}
	return n.cpt[i][p], true
}

// NewModel returns a fresh instance with empty evidence backed by n.
func (n *Network) NewModel() *Model {
	return &Model{
		net:      n,
		observed: make([]bool, len(n.methods)),
	}
}

// Observation records that Frequency subtypes were seen using exactly Methods.
type Observation struct {
	Methods   []string `json:"methods" yaml:"methods"`
	Frequency int      `json:"frequency" yaml:"frequency"`
}

// Recommendation is one ranked method with its posterior probability.
type Recommendation struct {
	Method      string  `json:"method"`
	Probability float64 `json:"probability"`
}

// PatternBelief is the posterior probability of one pattern outcome.
type PatternBelief struct {
	Pattern     string  `json:"pattern"`
	Probability float64 `json:"probability"`
}

func sortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Probability != recs[j].Probability {
			return recs[i].Probability > recs[j].Probability
		}
		return recs[i].Method < recs[j].Method
	})
}
