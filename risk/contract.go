package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownSymbol is returned when a contract symbol has no spec.
var ErrUnknownSymbol = errors.New("unknown contract symbol")

// ContractSpec holds the instrument economics sizing needs.
type ContractSpec struct {
	Symbol     string  `json:"symbol"`
	TickSize   float64 `json:"tick_size"`
	PointValue float64 `json:"point_value"` // dollars per full point per contract
	TickValue  float64 `json:"tick_value"`  // dollars per tick per contract
	Micro      string  `json:"micro,omitempty"`
}

var specs = map[string]ContractSpec{
	"NQ":  {Symbol: "NQ", TickSize: 0.25, PointValue: 20, TickValue: 5, Micro: "MNQ"},
	"MNQ": {Symbol: "MNQ", TickSize: 0.25, PointValue: 2, TickValue: 0.50},
	"ES":  {Symbol: "ES", TickSize: 0.25, PointValue: 50, TickValue: 12.50, Micro: "MES"},
	"MES": {Symbol: "MES", TickSize: 0.25, PointValue: 5, TickValue: 1.25},
}

// Contract looks up the spec for a symbol.
func Contract(symbol string) (ContractSpec, error) {
	spec, ok := specs[symbol]
	if !ok {
		return ContractSpec{}, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return spec, nil
}

// RoundToTick snaps a price to the contract's tick grid.
func (s ContractSpec) RoundToTick(price float64) float64 {
	return math.Round(price/s.TickSize) * s.TickSize
}
