package bridge

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RouteConfig holds the limits for one source/destination pair. Percent
// values are percentages, so "0.5" is half a percent.
type RouteConfig struct {
	SourceNetwork         NetworkType `json:"source_network" mapstructure:"source_network"`
	DestinationNetwork    NetworkType `json:"destination_network" mapstructure:"destination_network"`
	MinTransactionAmount  string      `json:"min_transaction_amount" mapstructure:"min_transaction_amount"`
	MaxTransactionAmount  string      `json:"max_transaction_amount" mapstructure:"max_transaction_amount"`
	BridgeFeePercent      string      `json:"bridge_fee_percent" mapstructure:"bridge_fee_percent"`
	MaxFeePercent         string      `json:"max_fee_percent" mapstructure:"max_fee_percent"`
	RequiredConfirmations int         `json:"required_confirmations" mapstructure:"required_confirmations"`
	Enabled               bool        `json:"enabled" mapstructure:"enabled"`
}

type limits struct {
	min, max, fee, maxFee decimal.Decimal
}

func (r RouteConfig) limits() (limits, error) {
	var l limits
	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"min_transaction_amount", r.MinTransactionAmount, &l.min},
		{"max_transaction_amount", r.MaxTransactionAmount, &l.max},
		{"bridge_fee_percent", r.BridgeFeePercent, &l.fee},
		{"max_fee_percent", r.MaxFeePercent, &l.maxFee},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return limits{}, fmt.Errorf("route %s->%s: %s %q is not a decimal", r.SourceNetwork, r.DestinationNetwork, f.name, f.value)
		}
		if d.IsNegative() {
			return limits{}, fmt.Errorf("route %s->%s: %s must not be negative", r.SourceNetwork, r.DestinationNetwork, f.name)
		}
		*f.dst = d
	}
	return l, nil
}

func (r RouteConfig) Validate() error {
	l, err := r.limits()
	if err != nil {
		return err
	}
	route := fmt.Sprintf("route %s->%s", r.SourceNetwork, r.DestinationNetwork)
	if l.min.GreaterThan(l.max) {
		return fmt.Errorf("%s: min amount %s exceeds max amount %s", route, l.min, l.max)
	}
	if l.fee.GreaterThan(l.maxFee) {
		return fmt.Errorf("%s: fee percent %s exceeds max fee percent %s", route, l.fee, l.maxFee)
	}
	if l.maxFee.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s: max fee percent %s exceeds 100", route, l.maxFee)
	}
	if r.RequiredConfirmations < 1 {
		return fmt.Errorf("%s: required confirmations must be at least 1", route)
	}
	if _, ok := DirectionBetween(r.SourceNetwork, r.DestinationNetwork); !ok {
		return fmt.Errorf("%s: no bridge direction connects these networks", route)
	}
	return nil
}

// Routes is keyed by direction.
type Routes map[Direction]RouteConfig

// sourceConfirmations is the default finality depth per source ledger.
var sourceConfirmations = map[NetworkType]int{
	NetworkAethercoin:  12,
	NetworkFractalcoin: 6,
	NetworkFilecoin:    20,
}

func DefaultRoutes() Routes {
	routes := make(Routes, len(directions))
	for d, pair := range directions {
		routes[d] = RouteConfig{
			SourceNetwork:         pair[0],
			DestinationNetwork:    pair[1],
			MinTransactionAmount:  "0.001",
			MaxTransactionAmount:  "1000000",
			BridgeFeePercent:      "0.5",
			MaxFeePercent:         "1",
			RequiredConfirmations: sourceConfirmations[pair[0]],
			Enabled:               true,
		}
	}
	return routes
}

func (r Routes) Validate() error {
	for d, route := range r {
		src, dst, ok := d.Networks()
		if !ok {
			return fmt.Errorf("unknown direction %q", d)
		}
		if route.SourceNetwork != src || route.DestinationNetwork != dst {
			return fmt.Errorf("route %s is configured for %s->%s", d, route.SourceNetwork, route.DestinationNetwork)
		}
		if err := route.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the configuration of an enabled direction.
func (r Routes) Lookup(d Direction) (RouteConfig, error) {
	route, ok := r[d]
	if !ok {
		return RouteConfig{}, &ValidationError{Field: "direction", Reason: fmt.Sprintf("direction %q is not supported", d)}
	}
	if !route.Enabled {
		return RouteConfig{}, &ValidationError{Field: "direction", Reason: fmt.Sprintf("direction %s is disabled", d)}
	}
	return route, nil
}

// Between returns the configuration for a source/destination pair.
func (r Routes) Between(source, destination NetworkType) (RouteConfig, error) {
	d, ok := DirectionBetween(source, destination)
	if !ok {
		return RouteConfig{}, &ValidationError{Field: "network", Reason: fmt.Sprintf("no bridge between %s and %s", source, destination)}
	}
	return r.Lookup(d)
}
