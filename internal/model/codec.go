package model

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"callrec/internal/errors"
)

// Wire layout (protobuf encoding, no generated code):
//
//	message Network {
//	  string  type_id  = 1;
//	  repeated Pattern patterns = 2;
//	  repeated Method  methods  = 3;
//	  double  epsilon  = 4;
//	}
//	message Pattern { string name = 1; double prior = 2; }
//	message Method  { string id = 1; repeated double p_true = 2 [packed = true]; }
const (
	fieldTypeID   protowire.Number = 1
	fieldPattern  protowire.Number = 2
	fieldMethod   protowire.Number = 3
	fieldEpsilon  protowire.Number = 4
	fieldName     protowire.Number = 1
	fieldPrior    protowire.Number = 2
	fieldMethodID protowire.Number = 1
	fieldPTrue    protowire.Number = 2
)

// priorTolerance bounds how far decoded priors may drift from summing to 1.
const priorTolerance = 1e-6

// Encode serializes n.
func Encode(n *Network) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTypeID, protowire.BytesType)
	b = protowire.AppendString(b, n.typeID)

	for p, name := range n.patterns {
		var pb []byte
		pb = protowire.AppendTag(pb, fieldName, protowire.BytesType)
		pb = protowire.AppendString(pb, name)
		pb = protowire.AppendTag(pb, fieldPrior, protowire.Fixed64Type)
		pb = protowire.AppendFixed64(pb, math.Float64bits(n.priors[p]))

		b = protowire.AppendTag(b, fieldPattern, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}

	for i, id := range n.methods {
		var packed []byte
		for _, v := range n.cpt[i] {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		var mb []byte
		mb = protowire.AppendTag(mb, fieldMethodID, protowire.BytesType)
		mb = protowire.AppendString(mb, id)
		mb = protowire.AppendTag(mb, fieldPTrue, protowire.BytesType)
		mb = protowire.AppendBytes(mb, packed)

		b = protowire.AppendTag(b, fieldMethod, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}

	b = protowire.AppendTag(b, fieldEpsilon, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(Epsilon))
	return b
}

// Decode parses and validates a serialized network. Any structural or
// numeric inconsistency is reported as CorruptArchive.
func Decode(data []byte) (*Network, error) {
	var (
		typeID   string
		patterns []string
		priors   []float64
		methods  []string
		cpt      [][]float64
	)

	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldTypeID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			typeID = v
			return n, nil
		case num == fieldPattern && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			name, prior, err := decodePattern(v)
			if err != nil {
				return 0, err
			}
			patterns = append(patterns, name)
			priors = append(priors, prior)
			return n, nil
		case num == fieldMethod && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			id, row, err := decodeMethod(v)
			if err != nil {
				return 0, err
			}
			methods = append(methods, id)
			cpt = append(cpt, row)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, corrupt(err)
	}

	if err := validate(typeID, patterns, priors, methods, cpt); err != nil {
		return nil, corrupt(err)
	}
	return newNetwork(typeID, patterns, priors, methods, cpt), nil
}

func corrupt(err error) error {
	return errors.New(errors.CorruptArchive, "invalid model data", err)
}

// walkFields calls fn for every field in b; fn returns how many bytes of
// the value it consumed (negative for a protowire parse error).
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func decodePattern(b []byte) (string, float64, error) {
	var name string
	var prior float64
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldName && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			name = s
			return n, nil
		case num == fieldPrior && typ == protowire.Fixed64Type:
			x, n := protowire.ConsumeFixed64(v)
			prior = math.Float64frombits(x)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	return name, prior, err
}

func decodeMethod(b []byte) (string, []float64, error) {
	var id string
	var row []float64
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldMethodID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			id = s
			return n, nil
		case num == fieldPTrue && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			for len(packed) > 0 {
				x, m := protowire.ConsumeFixed64(packed)
				if m < 0 {
					return m, nil
				}
				row = append(row, math.Float64frombits(x))
				packed = packed[m:]
			}
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	return id, row, err
}

func validate(typeID string, patterns []string, priors []float64, methods []string, cpt [][]float64) error {
	if typeID == "" {
		return fmt.Errorf("missing type id")
	}
	if len(patterns) == 0 || patterns[0] != NoPattern {
		return fmt.Errorf("%s: first pattern must be %q", typeID, NoPattern)
	}

	sum := 0.0
	for p, prior := range priors {
		if !(prior > 0 && prior < 1) {
			return fmt.Errorf("%s: prior of %s out of range: %v", typeID, patterns[p], prior)
		}
		sum += prior
	}
	if math.Abs(sum-1) > priorTolerance {
		return fmt.Errorf("%s: priors sum to %v", typeID, sum)
	}

	seen := make(map[string]struct{}, len(methods))
	for i, id := range methods {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: duplicate method %s", typeID, id)
		}
		seen[id] = struct{}{}
		if len(cpt[i]) != len(patterns) {
			return fmt.Errorf("%s: method %s has %d table entries, want %d", typeID, id, len(cpt[i]), len(patterns))
		}
		for _, v := range cpt[i] {
			if !(v > 0 && v < 1) {
				return fmt.Errorf("%s: method %s has probability %v outside (0,1)", typeID, id, v)
			}
		}
	}
	return nil
}
