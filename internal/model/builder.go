package model

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"callrec/internal/errors"
)

// Build constructs the network for typeID from frequency observations.
//
// Pattern outcomes are NoPattern followed by one outcome per observation,
// in input order. The NoPattern prior is clamped to Epsilon and the excess
// is taken from the largest observation prior (first one on ties), so the
// priors sum to exactly 1.
func Build(typeID string, observations []Observation) (*Network, error) {
	if typeID == "" {
		return nil, errors.Newf(errors.InvalidInput, "type id must not be empty")
	}
	if len(observations) == 0 {
		return nil, errors.Newf(errors.InvalidInput, "no observations for %s: at least one is required", typeID)
	}

	total := 0
	for i, o := range observations {
		if o.Frequency <= 0 {
			return nil, errors.Newf(errors.InvalidInput, "observation %d of %s has non-positive frequency %d", i+1, typeID, o.Frequency)
		}
		total += o.Frequency
	}

	patterns := make([]string, len(observations)+1)
	priors := make([]float64, len(observations)+1)
	patterns[0] = NoPattern
	priors[0] = MinProbability
	for i, o := range observations {
		patterns[i+1] = fmt.Sprintf("observation_%d", i+1)
		priors[i+1] = float64(o.Frequency) / float64(total)
	}
	if !normalizePriors(priors) {
		return nil, errors.Newf(errors.InvalidInput,
			"%s has %d observations: every prior would fall below %g", typeID, len(observations), MinProbability)
	}

	sets := make([]map[string]struct{}, len(observations))
	union := make(map[string]struct{})
	for i, o := range observations {
		sets[i] = make(map[string]struct{}, len(o.Methods))
		for _, m := range o.Methods {
			sets[i][m] = struct{}{}
			union[m] = struct{}{}
		}
	}

	methods := make([]string, 0, len(union))
	for m := range union {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	cpt := make([][]float64, len(methods))
	for mi, m := range methods {
		row := make([]float64, len(patterns))
		row[0] = MinProbability
		for oi := range observations {
			if _, ok := sets[oi][m]; ok {
				row[oi+1] = MaxProbability
			} else {
				row[oi+1] = MinProbability
			}
		}
		cpt[mi] = row
	}

	return newNetwork(typeID, patterns, priors, methods, cpt), nil
}

// normalizePriors makes priors sum to 1 by adjusting the largest
// observation prior. priors[0] is the clamped NoPattern prior. It reports
// false when the adjusted prior would drop below MinProbability.
func normalizePriors(priors []float64) bool {
	largest := floats.MaxIdx(priors[1:]) + 1
	rest := floats.Sum(priors) - priors[largest]
	priors[largest] = 1 - rest
	return priors[largest] >= MinProbability
}
