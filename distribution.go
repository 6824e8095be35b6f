package fogsim

// distribution.go holds the inter-arrival distributions of sensors.  Random
// variates are drawn by inverting the distribution's CDF at a uniform variate
// taken from a stream owned by the sensor, so a sensor's emission times depend
// only on its own stream.

import (
	"fmt"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution gives the time (ms) until a sensor's next emission
type Distribution interface {
	Next(strm *rand.Rand) float64
	Mean() float64
	String() string
}

// DeterministicDist always returns the same value
type DeterministicDist struct {
	Value float64
}

func (dd DeterministicDist) Next(strm *rand.Rand) float64 {
	return dd.Value
}

func (dd DeterministicDist) Mean() float64 {
	return dd.Value
}

func (dd DeterministicDist) String() string {
	return fmt.Sprintf("deterministic(%g)", dd.Value)
}

// ExponentialDist has the given mean
type ExponentialDist struct {
	MeanValue float64
}

func (ed ExponentialDist) Next(strm *rand.Rand) float64 {
	dist := distuv.Exponential{Rate: 1.0 / ed.MeanValue}
	return dist.Quantile(u01(strm))
}

func (ed ExponentialDist) Mean() float64 {
	return ed.MeanValue
}

func (ed ExponentialDist) String() string {
	return fmt.Sprintf("exponential(%g)", ed.MeanValue)
}

// UniformDist is uniform on [Min, Max]
type UniformDist struct {
	Min, Max float64
}

func (ud UniformDist) Next(strm *rand.Rand) float64 {
	dist := distuv.Uniform{Min: ud.Min, Max: ud.Max}
	return dist.Quantile(u01(strm))
}

func (ud UniformDist) Mean() float64 {
	return (ud.Min + ud.Max) / 2
}

func (ud UniformDist) String() string {
	return fmt.Sprintf("uniform(%g,%g)", ud.Min, ud.Max)
}

// NormalDist is normal with the given mean and standard deviation, with negative
// draws clipped to zero
type NormalDist struct {
	Mu, Sigma float64
}

func (nd NormalDist) Next(strm *rand.Rand) float64 {
	dist := distuv.Normal{Mu: nd.Mu, Sigma: nd.Sigma}
	v := dist.Quantile(u01(strm))
	if v < 0 {
		return 0
	}
	return v
}

func (nd NormalDist) Mean() float64 {
	return nd.Mu
}

func (nd NormalDist) String() string {
	return fmt.Sprintf("normal(%g,%g)", nd.Mu, nd.Sigma)
}

// u01 returns a variate strictly inside (0,1), where every quantile is finite
func u01(strm *rand.Rand) float64 {
	for {
		u := strm.Float64()
		if u > 0 {
			return u
		}
	}
}

// createStream builds the random stream of a named entity.  The stream depends only
// on the run seed and the name, so runs are repeatable and entities independent.
func createStream(seed uint64, name string) *rand.Rand {
	return rand.New(rand.NewPCG(seed, xxhash.Sum64String(name)))
}

// DistDesc is the serializable form of a Distribution
type DistDesc struct {
	Kind  string  `json:"kind" yaml:"kind"`
	Value float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Min   float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Sigma float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`
}

// Build turns the description into a Distribution.  Value is the constant of a
// deterministic distribution and the mean of exponential and normal ones.
func (dd DistDesc) Build() (Distribution, error) {
	switch dd.Kind {
	case "", "deterministic":
		if !(dd.Value > 0) {
			return nil, fmt.Errorf("deterministic inter-arrival %g must be positive", dd.Value)
		}
		return DeterministicDist{Value: dd.Value}, nil
	case "exponential":
		if !(dd.Value > 0) {
			return nil, fmt.Errorf("exponential mean %g must be positive", dd.Value)
		}
		return ExponentialDist{MeanValue: dd.Value}, nil
	case "uniform":
		if dd.Min < 0 || !(dd.Max > dd.Min) {
			return nil, fmt.Errorf("uniform bounds [%g,%g] are not a positive interval", dd.Min, dd.Max)
		}
		return UniformDist{Min: dd.Min, Max: dd.Max}, nil
	case "normal":
		if !(dd.Value > 0) || dd.Sigma < 0 {
			return nil, fmt.Errorf("normal(%g,%g) needs a positive mean", dd.Value, dd.Sigma)
		}
		return NormalDist{Mu: dd.Value, Sigma: dd.Sigma}, nil
	}
	return nil, fmt.Errorf("unknown distribution %q", dd.Kind)
}
