package distribution

import (
	"math"
	"math/rand"

	"github.com/healthsim/healthsim/pkg/models"
)

// ResolveDelayDays turns a DelaySpec into one concrete non-negative day
// offset. Fixed delays pass through; ranged delays draw from the declared
// distribution (uniform by default). A normal-ranged delay centers on the
// range midpoint with the range spanning six standard deviations, resampled
// into bounds per the usual cap.
func ResolveDelayDays(d models.DelaySpec, seed int64) (int, error) {
	if d.Days != nil {
		if *d.Days < 0 {
			return 0, models.NewConfigurationError("fixed delay is negative")
		}

		return *d.Days, nil
	}

	if d.MinDays == nil && d.MaxDays == nil {
		return 0, nil
	}

	if d.MinDays == nil || d.MaxDays == nil {
		return 0, models.NewConfigurationError("delay range requires both min_days and max_days")
	}

	min, max := *d.MinDays, *d.MaxDays
	if max < min {
		return 0, models.NewConfigurationError("delay range [%d,%d] is invalid", min, max)
	}

	rng := rand.New(rand.NewSource(seed))

	switch d.Distribution {
	case "", "uniform":
		return min + rng.Intn(max-min+1), nil
	case "normal":
		fmin, fmax := float64(min), float64(max)
		spec := &Spec{
			Type:   TypeNormal,
			Mean:   (fmin + fmax) / 2,
			StdDev: (fmax - fmin) / 6,
			Min:    &fmin,
			Max:    &fmax,
		}

		sample := drawBounded(rng, spec, func() float64 {
			return spec.Mean + rng.NormFloat64()*spec.StdDev
		})

		v, _ := sample.Float()

		return int(math.Round(v)), nil
	default:
		return 0, models.NewConfigurationError("unknown delay distribution %q", d.Distribution)
	}
}
