package oracle

import (
	"math/big"

	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

// MaxCardinality bounds the ring size.
const MaxCardinality = 65535

// Observation is one ring entry. Cumulatives are running sums since the ring
// was initialized.
type Observation struct {
	Timestamp                         int64    `json:"timestamp"`
	TickCumulative                    int64    `json:"tickCumulative"`
	SecondsPerLiquidityCumulativeX128 *big.Int `json:"secondsPerLiquidityCumulativeX128"`
	Initialized                       bool     `json:"initialized"`
}

func (o Observation) clone() Observation {
	out := o
	if o.SecondsPerLiquidityCumulativeX128 != nil {
		out.SecondsPerLiquidityCumulativeX128 = new(big.Int).Set(o.SecondsPerLiquidityCumulativeX128)
	} else {
		out.SecondsPerLiquidityCumulativeX128 = new(big.Int)
	}
	return out
}

// transform extends last to timestamp assuming tick and liquidity were in
// effect for the whole interval.
func transform(last Observation, timestamp int64, tick int32, liquidity *uint256.Int) Observation {
	delta := timestamp - last.Timestamp
	den := big.NewInt(1)
	if liquidity != nil && !liquidity.IsZero() {
		den = liquidity.ToBig()
	}
	spl := new(big.Int).Lsh(big.NewInt(delta), 128)
	spl.Quo(spl, den)
	spl.Add(spl, last.SecondsPerLiquidityCumulativeX128)
	return Observation{
		Timestamp:                         timestamp,
		TickCumulative:                    last.TickCumulative + int64(tick)*delta,
		SecondsPerLiquidityCumulativeX128: spl,
		Initialized:                       true,
	}
}

// Ring is a fixed-capacity circular buffer of observations. Cardinality is the
// number of populated slots; CardinalityNext is the size the ring grows to on
// the next wrap.
type Ring struct {
	Observations    []Observation `json:"observations"`
	Index           uint16        `json:"index"`
	Cardinality     uint16        `json:"cardinality"`
	CardinalityNext uint16        `json:"cardinalityNext"`
}

// NewRing returns an uninitialized ring.
func NewRing() *Ring {
	return &Ring{}
}

// Initialize writes the first observation.
func (r *Ring) Initialize(timestamp int64) {
	r.Observations = []Observation{{
		Timestamp:                         timestamp,
		SecondsPerLiquidityCumulativeX128: new(big.Int),
		Initialized:                       true,
	}}
	r.Index = 0
	r.Cardinality = 1
	r.CardinalityNext = 1
}

// Initialized reports whether the ring holds at least one observation.
func (r *Ring) Initialized() bool { return r.Cardinality > 0 }

// Write records the tick and liquidity that were in effect up to timestamp.
// A second write at the same timestamp is a no-op. The ring only grows into
// the slots prepared by Grow once the last populated slot is reached.
func (r *Ring) Write(timestamp int64, tick int32, liquidity *uint256.Int) error {
	if err := r.CheckWrite(timestamp); err != nil {
		return err
	}
	last := r.Observations[r.Index]
	if last.Timestamp == timestamp {
		return nil
	}

	cardinality := r.Cardinality
	if r.CardinalityNext > r.Cardinality && r.Index == r.Cardinality-1 {
		cardinality = r.CardinalityNext
	}
	next := (r.Index + 1) % cardinality
	r.Observations[next] = transform(last, timestamp, tick, liquidity)
	r.Index = next
	r.Cardinality = cardinality
	return nil
}

// CheckWrite reports whether Write at timestamp would be accepted, without
// touching the ring.
func (r *Ring) CheckWrite(timestamp int64) error {
	if !r.Initialized() {
		return model.ErrOracleNotInitialized
	}
	if last := r.Observations[r.Index].Timestamp; timestamp < last {
		return model.ErrTimestampRegression.Wrapf("observation at %d before %d", timestamp, last)
	}
	return nil
}

// Grow prepares slots up to next. Slots are populated lazily by Write.
func (r *Ring) Grow(next uint16) error {
	if !r.Initialized() {
		return model.ErrOracleNotInitialized
	}
	if next <= r.CardinalityNext {
		return nil
	}
	for i := r.CardinalityNext; i < next; i++ {
		r.Observations = append(r.Observations, Observation{SecondsPerLiquidityCumulativeX128: new(big.Int)})
	}
	r.CardinalityNext = next
	return nil
}

// Latest returns the most recent observation.
func (r *Ring) Latest() (Observation, error) {
	if !r.Initialized() {
		return Observation{}, model.ErrOracleNotInitialized
	}
	return r.Observations[r.Index].clone(), nil
}

// Oldest returns the oldest populated observation.
func (r *Ring) Oldest() (Observation, error) {
	if !r.Initialized() {
		return Observation{}, model.ErrOracleNotInitialized
	}
	o := r.Observations[(r.Index+1)%r.Cardinality]
	if !o.Initialized {
		o = r.Observations[0]
	}
	return o.clone(), nil
}

// Observe returns the cumulatives at now-secondsAgo for each entry.
func (r *Ring) Observe(now int64, secondsAgos []int64, tick int32, liquidity *uint256.Int) ([]int64, []*big.Int, error) {
	if !r.Initialized() {
		return nil, nil, model.ErrOracleNotInitialized
	}
	ticks := make([]int64, len(secondsAgos))
	spls := make([]*big.Int, len(secondsAgos))
	for i, ago := range secondsAgos {
		o, err := r.ObserveSingle(now, ago, tick, liquidity)
		if err != nil {
			return nil, nil, err
		}
		ticks[i] = o.TickCumulative
		spls[i] = o.SecondsPerLiquidityCumulativeX128
	}
	return ticks, spls, nil
}

// ObserveSingle reconstructs the observation at now-secondsAgo, interpolating
// between the surrounding entries.
func (r *Ring) ObserveSingle(now, secondsAgo int64, tick int32, liquidity *uint256.Int) (Observation, error) {
	if secondsAgo < 0 {
		return Observation{}, model.ErrInvalidArgument.Wrapf("secondsAgo %d", secondsAgo)
	}
	if secondsAgo == 0 {
		last := r.Observations[r.Index]
		if last.Timestamp != now {
			return transform(last, now, tick, liquidity), nil
		}
		return last.clone(), nil
	}

	target := now - secondsAgo
	before, after, err := r.surrounding(target, tick, liquidity)
	if err != nil {
		return Observation{}, err
	}
	switch {
	case target == before.Timestamp:
		return before.clone(), nil
	case target == after.Timestamp:
		return after.clone(), nil
	}

	span := after.Timestamp - before.Timestamp
	elapsed := target - before.Timestamp
	tc := before.TickCumulative + (after.TickCumulative-before.TickCumulative)/span*elapsed

	spl := new(big.Int).Sub(after.SecondsPerLiquidityCumulativeX128, before.SecondsPerLiquidityCumulativeX128)
	spl.Mul(spl, big.NewInt(elapsed))
	spl.Quo(spl, big.NewInt(span))
	spl.Add(spl, before.SecondsPerLiquidityCumulativeX128)

	return Observation{Timestamp: target, TickCumulative: tc, SecondsPerLiquidityCumulativeX128: spl, Initialized: true}, nil
}

func (r *Ring) surrounding(target int64, tick int32, liquidity *uint256.Int) (Observation, Observation, error) {
	before := r.Observations[r.Index]
	if before.Timestamp <= target {
		if before.Timestamp == target {
			return before, before, nil
		}
		return before, transform(before, target, tick, liquidity), nil
	}

	oldest := r.Observations[(r.Index+1)%r.Cardinality]
	if !oldest.Initialized {
		oldest = r.Observations[0]
	}
	if target < oldest.Timestamp {
		return Observation{}, Observation{}, model.ErrInsufficientHistory.Wrapf("target %d older than %d", target, oldest.Timestamp)
	}
	before, after := r.binarySearch(target)
	return before, after, nil
}

func (r *Ring) binarySearch(target int64) (Observation, Observation) {
	card := int(r.Cardinality)
	l := (int(r.Index) + 1) % card
	h := l + card - 1
	var before, after Observation
	for {
		i := (l + h) / 2
		before = r.Observations[i%card]
		if !before.Initialized {
			l = i + 1
			continue
		}
		after = r.Observations[(i+1)%card]
		targetAtOrAfter := before.Timestamp <= target
		if targetAtOrAfter && target <= after.Timestamp {
			return before, after
		}
		if !targetAtOrAfter {
			h = i - 1
		} else {
			l = i + 1
		}
	}
}

// Clone returns a deep copy of the ring.
func (r *Ring) Clone() *Ring {
	out := &Ring{Index: r.Index, Cardinality: r.Cardinality, CardinalityNext: r.CardinalityNext}
	out.Observations = make([]Observation, len(r.Observations))
	for i, o := range r.Observations {
		out.Observations[i] = o.clone()
	}
	return out
}
