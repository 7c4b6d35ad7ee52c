package bars

import (
	"fmt"
	"math"
	"time"
)

// Record is one decoded market bar. Records are values and are never
// mutated once decoded.
type Record struct {
	Timestamp     time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	BTCVolume     float64
	USDVolume     float64
	WeightedPrice float64
}

// Key identifies a Record by all of its fields. Two records with equal keys
// are Equal.
type Key struct {
	unixNano      int64
	open          uint64
	high          uint64
	low           uint64
	close         uint64
	btcVolume     uint64
	usdVolume     uint64
	weightedPrice uint64
}

// Key returns the dedup key for r. Floats are keyed by their bit pattern, so
// 0 and -0 differ and NaN equals NaN.
func (r Record) Key() Key {
	return Key{
		unixNano:      r.Timestamp.UnixNano(),
		open:          math.Float64bits(r.Open),
		high:          math.Float64bits(r.High),
		low:           math.Float64bits(r.Low),
		close:         math.Float64bits(r.Close),
		btcVolume:     math.Float64bits(r.BTCVolume),
		usdVolume:     math.Float64bits(r.USDVolume),
		weightedPrice: math.Float64bits(r.WeightedPrice),
	}
}

// Equal reports whether r and o hold the same instant and field values.
func (r Record) Equal(o Record) bool {
	return r.Key() == o.Key()
}

func (r Record) String() string {
	return fmt.Sprintf(
		"Record{timestamp=%s open=%g high=%g low=%g close=%g btcVolume=%g usdVolume=%g weightedPrice=%g}",
		r.Timestamp.Format(time.RFC3339), r.Open, r.High, r.Low, r.Close,
		r.BTCVolume, r.USDVolume, r.WeightedPrice,
	)
}
