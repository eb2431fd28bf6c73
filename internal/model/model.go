package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Model is one usable instance of a Network. Its evidence is private to the
// instance; the network is shared. A Model is not safe for concurrent use:
// the pool hands each instance to one borrower at a time.
type Model struct {
	net      *Network
	observed []bool
}

// Network returns the shared network behind this instance.
func (m *Model) Network() *Network {
	return m.net
}

// TypeID returns the type this model predicts for.
func (m *Model) TypeID() string {
	return m.net.typeID
}

// Reset clears all evidence.
func (m *Model) Reset() {
	for i := range m.observed {
		m.observed[i] = false
	}
}

// SetObservedMethod fixes method's node to true. Unknown methods carry no
// information and are ignored.
func (m *Model) SetObservedMethod(method string) {
	if i, ok := m.net.index[method]; ok {
		m.observed[i] = true
	}
}

// SetObservedMethods calls SetObservedMethod for each method.
func (m *Model) SetObservedMethods(methods []string) {
	for _, method := range methods {
		m.SetObservedMethod(method)
	}
}

// Evidence returns the observed methods, sorted.
func (m *Model) Evidence() []string {
	var out []string
	for i, ok := range m.observed {
		if ok {
			out = append(out, m.net.methods[i])
		}
	}
	return out
}

// HasEvidence reports whether any node is fixed.
func (m *Model) HasEvidence() bool {
	for _, ok := range m.observed {
		if ok {
			return true
		}
	}
	return false
}

// KnownMethods returns the method node identifiers.
func (m *Model) KnownMethods() []string {
	return m.net.Methods()
}

// KnownPatterns returns the pattern outcome names.
func (m *Model) KnownPatterns() []string {
	return m.net.Patterns()
}

// posterior returns P(pattern | evidence) for every pattern outcome.
// The products run in log space so long evidence lists do not underflow.
func (m *Model) posterior() []float64 {
	n := m.net
	logw := make([]float64, len(n.patterns))
	for p := range n.patterns {
		logw[p] = math.Log(n.priors[p])
	}
	for i, ok := range m.observed {
		if !ok {
			continue
		}
		for p := range n.patterns {
			logw[p] += math.Log(n.cpt[i][p])
		}
	}

	logZ := floats.LogSumExp(logw)
	post := make([]float64, len(logw))
	for p, lw := range logw {
		post[p] = math.Exp(lw - logZ)
	}
	return post
}

// Recommend returns P(method = true | evidence) for every method that is
// not part of the evidence, highest first; ties are ordered by method id.
func (m *Model) Recommend() []Recommendation {
	post := m.posterior()
	recs := make([]Recommendation, 0, len(m.net.methods))
	for i, method := range m.net.methods {
		if m.observed[i] {
			continue
		}
		recs = append(recs, Recommendation{
			Method:      method,
			Probability: floats.Dot(post, m.net.cpt[i]),
		})
	}
	sortRecommendations(recs)
	return recs
}

// PatternBeliefs returns the posterior of every pattern outcome, highest first.
func (m *Model) PatternBeliefs() []PatternBelief {
	post := m.posterior()
	beliefs := make([]PatternBelief, len(post))
	for p, prob := range post {
		beliefs[p] = PatternBelief{Pattern: m.net.patterns[p], Probability: prob}
	}
	sort.SliceStable(beliefs, func(i, j int) bool {
		return beliefs[i].Probability > beliefs[j].Probability
	})
	return beliefs
}
