package model

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"callrec/internal/errors"
)

func sampleObservations() []Observation {
	return []Observation{
		{Methods: []string{"A", "B"}, Frequency: 3},
		{Methods: []string{"A"}, Frequency: 1},
	}
}

func mustBuild(t *testing.T, typeID string, obs []Observation) *Network {
	t.Helper()
	net, err := Build(typeID, obs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return net
}

func TestBuild_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		typeID string
		obs    []Observation
	}{
		{"no observations", "T", nil},
		{"empty type", "", sampleObservations()},
		{"zero frequency", "T", []Observation{{Methods: []string{"A"}, Frequency: 0}}},
		{"negative frequency", "T", []Observation{{Methods: []string{"A"}, Frequency: -2}}},
		{"priors below epsilon", "T", equalObservations(10001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.typeID, tt.obs)
			if !errors.HasCode(err, errors.InvalidInput) {
				t.Errorf("Build error = %v, want %s", err, errors.InvalidInput)
			}
		})
	}
}

func equalObservations(n int) []Observation {
	obs := make([]Observation, n)
	for i := range obs {
		obs[i] = Observation{Methods: []string{fmt.Sprintf("m%d", i%10)}, Frequency: 1}
	}
	return obs
}

func TestBuild_ManyObservations(t *testing.T) {
	net, err := Build("T", equalObservations(4000))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i, p := range net.Priors() {
		if p < MinProbability || p > MaxProbability {
			t.Fatalf("prior %d = %v out of range", i, p)
		}
	}

	m := net.NewModel()
	m.SetObservedMethod("m0")
	for _, r := range m.Recommend() {
		if math.IsNaN(r.Probability) {
			t.Fatalf("recommendation %s is NaN", r.Method)
		}
	}
	if _, err := Decode(Encode(net)); err != nil {
		t.Errorf("Decode(Encode(net)) failed: %v", err)
	}
}

func TestBuild_PriorsSumToOne(t *testing.T) {
	cases := [][]Observation{
		sampleObservations(),
		{{Methods: []string{"A"}, Frequency: 1}},
		{{Methods: []string{"A"}, Frequency: 7}, {Methods: []string{"B"}, Frequency: 7}, {Methods: []string{"C"}, Frequency: 13}},
		{{Methods: nil, Frequency: 1000000}, {Methods: []string{"x", "y"}, Frequency: 3}},
	}

	for i, obs := range cases {
		net := mustBuild(t, "T", obs)
		sum := 0.0
		for _, p := range net.Priors() {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("case %d: priors sum to %v, want 1", i, sum)
		}
		if net.Priors()[0] != MinProbability {
			t.Errorf("case %d: none prior = %v, want %v", i, net.Priors()[0], MinProbability)
		}
	}
}

func TestBuild_LargestPriorAbsorbsExcess(t *testing.T) {
	net := mustBuild(t, "T", []Observation{
		{Methods: []string{"A"}, Frequency: 2},
		{Methods: []string{"B"}, Frequency: 2},
	})
	priors := net.Priors()
	// First maximum absorbs the clamping excess.
	if math.Abs(priors[1]-(0.5-Epsilon)) > 1e-12 {
		t.Errorf("priors[1] = %v, want %v", priors[1], 0.5-Epsilon)
	}
	if priors[2] != 0.5 {
		t.Errorf("priors[2] = %v, want 0.5", priors[2])
	}
}

func TestBuild_TablesAreClamped(t *testing.T) {
	net := mustBuild(t, "T", sampleObservations())

	for _, m := range net.Methods() {
		for p := range net.Patterns() {
			pt, ok := net.PTrue(m, p)
			if !ok {
				t.Fatalf("PTrue(%s, %d) not found", m, p)
			}
			pf := 1 - pt
			if pt == 0 || pt == 1 || pf == 0 || pf == 1 {
				t.Errorf("PTrue(%s, %d) = %v is not clamped", m, p, pt)
			}
			if math.Abs(pt+pf-1) > 1e-12 {
				t.Errorf("P(true)+P(false) = %v for %s|%d", pt+pf, m, p)
			}
		}
	}
	for _, p := range net.Priors() {
		if p == 0 || p == 1 {
			t.Errorf("prior %v is not clamped", p)
		}
	}

	if pt, _ := net.PTrue("B", 2); pt != MinProbability {
		t.Errorf("PTrue(B, observation_2) = %v, want %v", pt, MinProbability)
	}
	if pt, _ := net.PTrue("A", 1); pt != MaxProbability {
		t.Errorf("PTrue(A, observation_1) = %v, want %v", pt, MaxProbability)
	}
	if pt, _ := net.PTrue("A", 0); pt != MinProbability {
		t.Errorf("PTrue(A, none) = %v, want %v", pt, MinProbability)
	}
}

func TestBuild_Structure(t *testing.T) {
	net := mustBuild(t, "java/util/List", sampleObservations())

	if net.TypeID() != "java/util/List" {
		t.Errorf("TypeID = %q", net.TypeID())
	}
	wantPatterns := []string{"none", "observation_1", "observation_2"}
	if !reflect.DeepEqual(net.Patterns(), wantPatterns) {
		t.Errorf("Patterns = %v, want %v", net.Patterns(), wantPatterns)
	}
	if !reflect.DeepEqual(net.Methods(), []string{"A", "B"}) {
		t.Errorf("Methods = %v, want [A B]", net.Methods())
	}
	if _, ok := net.PTrue("Z", 0); ok {
		t.Error("PTrue for unknown method should report false")
	}
}

func TestModel_EndToEnd(t *testing.T) {
	m := mustBuild(t, "T", sampleObservations()).NewModel()
	m.SetObservedMethod("A")

	recs := m.Recommend()
	var foundB bool
	for _, r := range recs {
		if r.Method == "A" {
			t.Error("Recommend returned observed method A")
		}
		if r.Method == "B" {
			foundB = true
			if r.Probability <= 0.5 {
				t.Errorf("P(B | A) = %v, want > 0.5", r.Probability)
			}
		}
	}
	if !foundB {
		t.Error("Recommend did not return B")
	}
}

func TestModel_RecommendWithoutEvidence(t *testing.T) {
	m := mustBuild(t, "T", sampleObservations()).NewModel()

	recs := m.Recommend()
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].Method != "A" {
		t.Errorf("top recommendation = %s, want A", recs[0].Method)
	}
	if recs[0].Probability < recs[1].Probability {
		t.Error("recommendations not sorted by descending probability")
	}
	// P(A) ~ 1 - none - eps; P(B) ~ 0.75
	if math.Abs(recs[1].Probability-0.75) > 0.001 {
		t.Errorf("P(B) = %v, want about 0.75", recs[1].Probability)
	}
}

func TestModel_Exclusion(t *testing.T) {
	obs := []Observation{
		{Methods: []string{"a", "b", "c"}, Frequency: 5},
		{Methods: []string{"b", "d"}, Frequency: 2},
		{Methods: []string{"e"}, Frequency: 9},
	}
	m := mustBuild(t, "T", obs).NewModel()

	evidenceSets := [][]string{{}, {"a"}, {"b", "d"}, {"a", "b", "c", "d", "e"}, {"unknown", "e"}}
	for _, ev := range evidenceSets {
		m.Reset()
		m.SetObservedMethods(ev)
		observed := make(map[string]bool)
		for _, e := range m.Evidence() {
			observed[e] = true
		}
		for _, r := range m.Recommend() {
			if observed[r.Method] {
				t.Errorf("evidence %v: Recommend returned observed method %s", ev, r.Method)
			}
		}
	}
}

func TestModel_Determinism(t *testing.T) {
	obs := []Observation{
		{Methods: []string{"a", "b"}, Frequency: 1},
		{Methods: []string{"b", "c"}, Frequency: 1},
		{Methods: []string{"c", "a"}, Frequency: 1},
	}
	m := mustBuild(t, "T", obs).NewModel()
	m.SetObservedMethod("b")

	first := m.Recommend()
	second := m.Recommend()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Recommend not deterministic: %v vs %v", first, second)
	}
}

func TestModel_TiesOrderedByMethod(t *testing.T) {
	m := mustBuild(t, "T", []Observation{{Methods: []string{"z", "m", "a"}, Frequency: 1}}).NewModel()

	recs := m.Recommend()
	got := []string{recs[0].Method, recs[1].Method, recs[2].Method}
	if !reflect.DeepEqual(got, []string{"a", "m", "z"}) {
		t.Errorf("tie order = %v, want [a m z]", got)
	}
}

func TestModel_UnknownMethodIsNoOp(t *testing.T) {
	m := mustBuild(t, "T", sampleObservations()).NewModel()
	before := m.Recommend()

	m.SetObservedMethod("doesNotExist")
	if m.HasEvidence() {
		t.Error("unknown method should not become evidence")
	}
	if !reflect.DeepEqual(before, m.Recommend()) {
		t.Error("unknown method changed recommendations")
	}
}

func TestModel_Reset(t *testing.T) {
	m := mustBuild(t, "T", sampleObservations()).NewModel()
	m.SetObservedMethods([]string{"A", "B"})
	if len(m.Evidence()) != 2 {
		t.Fatalf("Evidence = %v, want 2 entries", m.Evidence())
	}

	m.Reset()
	if m.HasEvidence() {
		t.Errorf("Evidence after Reset = %v, want empty", m.Evidence())
	}
}

func TestModel_InstancesShareNetworkNotEvidence(t *testing.T) {
	net := mustBuild(t, "T", sampleObservations())
	a := net.NewModel()
	b := net.NewModel()

	a.SetObservedMethod("A")
	if b.HasEvidence() {
		t.Error("evidence leaked between instances")
	}
	if a.Network() != b.Network() {
		t.Error("instances should share the network")
	}
}

func TestModel_PatternBeliefs(t *testing.T) {
	m := mustBuild(t, "T", sampleObservations()).NewModel()
	m.SetObservedMethod("B")

	beliefs := m.PatternBeliefs()
	if len(beliefs) != 3 {
		t.Fatalf("len(beliefs) = %d, want 3", len(beliefs))
	}
	if beliefs[0].Pattern != "observation_1" {
		t.Errorf("most likely pattern = %s, want observation_1", beliefs[0].Pattern)
	}
	sum := 0.0
	for _, b := range beliefs {
		sum += b.Probability
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("pattern beliefs sum to %v", sum)
	}
}

func TestModel_LongEvidenceDoesNotUnderflow(t *testing.T) {
	var methods []string
	for i := 0; i < 200; i++ {
		methods = append(methods, string(rune('a'+i%26))+string(rune('A'+i/26)))
	}
	obs := []Observation{
		{Methods: methods, Frequency: 1},
		{Methods: []string{"other"}, Frequency: 1},
	}
	m := mustBuild(t, "T", obs).NewModel()
	m.SetObservedMethods(methods[:150])

	for _, r := range m.Recommend() {
		if math.IsNaN(r.Probability) || math.IsInf(r.Probability, 0) {
			t.Fatalf("P(%s) = %v", r.Method, r.Probability)
		}
	}
}
