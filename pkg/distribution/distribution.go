// Package distribution turns typed distribution descriptors into concrete
// values. Sampling is a pure function of (descriptor, seed): the same pair
// always yields the same value, and distinct seeds are statistically
// independent. The package never owns persistent random state; every call
// builds its generator from a seed derived by pkg/seed.
package distribution

import (
	"math"
	"math/rand"

	"github.com/healthsim/healthsim/pkg/condition"
	"github.com/healthsim/healthsim/pkg/models"
)

// Distribution type tags accepted in Spec.Type.
const (
	TypeCategorical = "categorical"
	TypeNormal      = "normal"
	TypeLogNormal   = "lognormal"
	TypeUniform     = "uniform"
	TypeExplicit    = "explicit"
	TypeAgeBand     = "age_band"
	TypeConditional = "conditional"
)

// weightTolerance bounds |sum(weights) - 1|. Weights outside the tolerance
// fail validation rather than being renormalized: silently changing ratios
// would violate author intent.
const weightTolerance = 1e-6

// maxResampleAttempts caps bounded-resampling before clamping. Resampling
// avoids stacking values visibly at the boundary; past the cap the value is
// clamped and flagged.
const maxResampleAttempts = 10

// Spec is a typed distribution descriptor. Exactly the fields relevant to
// Type are read.
type Spec struct {
	Type string `json:"type" validate:"required"`

	// Normal / LogNormal / Uniform.
	Mean   float64  `json:"mean,omitempty"`
	StdDev float64  `json:"std,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`

	// Categorical / Explicit.
	Choices []WeightedChoice `json:"choices,omitempty"`

	// AgeBand.
	Bands []Band `json:"bands,omitempty"`

	// Conditional.
	Rules   []Rule `json:"rules,omitempty"`
	Default *Spec  `json:"default,omitempty"`
}

// WeightedChoice is one weighted value for categorical and explicit
// distributions.
type WeightedChoice struct {
	Value  any     `json:"value"`
	Weight float64 `json:"weight"`
}

// Band is a weighted numeric range; the value is drawn uniformly within the
// chosen band.
type Band struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Weight float64 `json:"weight"`
}

// Rule pairs a predicate with a nested distribution. The first rule whose
// predicate evaluates true against the current context wins.
type Rule struct {
	When *models.EventCondition `json:"when"`
	Then *Spec                  `json:"then"`
}

// Sample is one concrete sampled value. BoundaryClamped marks values that
// exhausted the resample cap and were clamped to a bound.
type Sample struct {
	Value           any
	BoundaryClamped bool
}

// Float returns the sample as a float64 when it is numeric.
func (s Sample) Float() (float64, bool) {
	switch v := s.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Validate checks the descriptor at load time. Weight-sum violations and
// malformed descriptors are ConfigurationErrors.
func (s *Spec) Validate() error {
	switch s.Type {
	case TypeCategorical, TypeExplicit:
		return validateWeights(choiceWeights(s.Choices), s.Type)
	case TypeAgeBand:
		if len(s.Bands) == 0 {
			return models.NewConfigurationError("%s distribution has no bands", s.Type)
		}

		weights := make([]float64, len(s.Bands))

		for i, b := range s.Bands {
			if b.Max < b.Min {
				return models.NewConfigurationError("age band [%v,%v] is inverted", b.Min, b.Max)
			}

			weights[i] = b.Weight
		}

		return validateWeights(weights, s.Type)
	case TypeNormal, TypeLogNormal:
		if s.StdDev < 0 {
			return models.NewConfigurationError("%s distribution has negative std", s.Type)
		}

		if s.Min != nil && s.Max != nil && *s.Max < *s.Min {
			return models.NewConfigurationError("%s bounds [%v,%v] are inverted", s.Type, *s.Min, *s.Max)
		}

		return nil
	case TypeUniform:
		if s.Min == nil || s.Max == nil {
			return models.NewConfigurationError("uniform distribution requires min and max")
		}

		if *s.Max < *s.Min {
			return models.NewConfigurationError("uniform bounds [%v,%v] are inverted", *s.Min, *s.Max)
		}

		return nil
	case TypeConditional:
		if len(s.Rules) == 0 {
			return models.NewConfigurationError("conditional distribution has no rules")
		}

		for i, r := range s.Rules {
			if r.When == nil || r.Then == nil {
				return models.NewConfigurationError("conditional rule %d is incomplete", i)
			}

			if err := r.Then.Validate(); err != nil {
				return err
			}
		}

		if s.Default != nil {
			return s.Default.Validate()
		}

		return nil
	default:
		return models.NewConfigurationError("unknown distribution type %q", s.Type)
	}
}

// Draw samples one value. The entity and context are consulted only by
// conditional distributions.
func Draw(spec *Spec, seed int64, entity *models.Entity, context map[string]any) (Sample, error) {
	rng := rand.New(rand.NewSource(seed))

	return draw(spec, rng, entity, context)
}

func draw(spec *Spec, rng *rand.Rand, entity *models.Entity, context map[string]any) (Sample, error) {
	switch spec.Type {
	case TypeCategorical, TypeExplicit:
		idx, err := weightedIndex(rng, choiceWeights(spec.Choices), spec.Type)
		if err != nil {
			return Sample{}, err
		}

		return Sample{Value: spec.Choices[idx].Value}, nil

	case TypeUniform:
		if spec.Min == nil || spec.Max == nil {
			return Sample{}, models.NewConfigurationError("uniform distribution requires min and max")
		}

		return Sample{Value: *spec.Min + rng.Float64()*(*spec.Max-*spec.Min)}, nil

	case TypeNormal:
		return drawBounded(rng, spec, func() float64 {
			return spec.Mean + rng.NormFloat64()*spec.StdDev
		}), nil

	case TypeLogNormal:
		return drawBounded(rng, spec, func() float64 {
			return math.Exp(spec.Mean + rng.NormFloat64()*spec.StdDev)
		}), nil

	case TypeAgeBand:
		weights := make([]float64, len(spec.Bands))

		for i, b := range spec.Bands {
			weights[i] = b.Weight
		}

		idx, err := weightedIndex(rng, weights, spec.Type)
		if err != nil {
			return Sample{}, err
		}

		band := spec.Bands[idx]

		return Sample{Value: band.Min + rng.Float64()*(band.Max-band.Min)}, nil

	case TypeConditional:
		for _, rule := range spec.Rules {
			ok, err := condition.Evaluate(rule.When, entity, context)
			if err != nil {
				return Sample{}, err
			}

			if ok {
				return draw(rule.Then, rng, entity, context)
			}
		}

		if spec.Default != nil {
			return draw(spec.Default, rng, entity, context)
		}

		return Sample{}, models.NewConfigurationError("conditional distribution: no rule matched and no default supplied")

	default:
		return Sample{}, models.NewConfigurationError("unknown distribution type %q", spec.Type)
	}
}

// drawBounded resamples until the value lands inside the optional bounds,
// clamping and flagging after the attempt cap.
func drawBounded(rng *rand.Rand, spec *Spec, next func() float64) Sample {
	value := next()

	if spec.Min == nil && spec.Max == nil {
		return Sample{Value: value}
	}

	for attempt := 0; attempt < maxResampleAttempts; attempt++ {
		if inBounds(value, spec.Min, spec.Max) {
			return Sample{Value: value}
		}

		value = next()
	}

	if inBounds(value, spec.Min, spec.Max) {
		return Sample{Value: value}
	}

	if spec.Min != nil && value < *spec.Min {
		value = *spec.Min
	}

	if spec.Max != nil && value > *spec.Max {
		value = *spec.Max
	}

	return Sample{Value: value, BoundaryClamped: true}
}

func inBounds(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}

	if max != nil && v > *max {
		return false
	}

	return true
}

func choiceWeights(choices []WeightedChoice) []float64 {
	weights := make([]float64, len(choices))

	for i, c := range choices {
		weights[i] = c.Weight
	}

	return weights
}

func validateWeights(weights []float64, distType string) error {
	if len(weights) == 0 {
		return models.NewConfigurationError("%s distribution has no choices", distType)
	}

	var sum float64

	for _, w := range weights {
		if w < 0 {
			return models.NewConfigurationError("%s distribution has a negative weight", distType)
		}

		sum += w
	}

	if math.Abs(sum-1) > weightTolerance {
		return models.NewConfigurationError("%s weights sum to %v, expected 1.0", distType, sum)
	}

	return nil
}

func weightedIndex(rng *rand.Rand, weights []float64, distType string) (int, error) {
	if err := validateWeights(weights, distType); err != nil {
		return 0, err
	}

	target := rng.Float64()

	var cumulative float64

	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			return i, nil
		}
	}

	return len(weights) - 1, nil
}
