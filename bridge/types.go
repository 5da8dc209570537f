// Package bridge implements the cross-chain transfer lifecycle: request
// validation, fee calculation, source confirmation, minting on the
// destination ledger and compensating reverts.
package bridge

import (
	"fmt"
	"strings"
	"time"
)

type NetworkType string

const (
	NetworkAethercoin  NetworkType = "AETHERCOIN"
	NetworkFractalcoin NetworkType = "FRACTALCOIN"
	NetworkFilecoin    NetworkType = "FILECOIN"
	NetworkEthereum    NetworkType = "ETHEREUM"
	NetworkOther       NetworkType = "OTHER"
)

var Networks = []NetworkType{NetworkAethercoin, NetworkFractalcoin, NetworkFilecoin, NetworkEthereum, NetworkOther}

func ParseNetwork(s string) (NetworkType, error) {
	n := NetworkType(strings.ToUpper(strings.TrimSpace(s)))
	if n == "ATC" {
		return NetworkAethercoin, nil
	}
	for _, known := range Networks {
		if n == known {
			return n, nil
		}
	}
	return "", &ValidationError{Field: "network", Reason: fmt.Sprintf("unknown network %q", s)}
}

type Direction string

const (
	DirectionATCToFractalcoin      Direction = "ATC_TO_FRACTALCOIN"
	DirectionFractalcoinToATC      Direction = "FRACTALCOIN_TO_ATC"
	DirectionATCToFilecoin         Direction = "ATC_TO_FILECOIN"
	DirectionFilecoinToATC         Direction = "FILECOIN_TO_ATC"
	DirectionFractalcoinToFilecoin Direction = "FRACTALCOIN_TO_FILECOIN"
	DirectionFilecoinToFractalcoin Direction = "FILECOIN_TO_FRACTALCOIN"
)

var directions = map[Direction][2]NetworkType{
	DirectionATCToFractalcoin:      {NetworkAethercoin, NetworkFractalcoin},
	DirectionFractalcoinToATC:      {NetworkFractalcoin, NetworkAethercoin},
	DirectionATCToFilecoin:         {NetworkAethercoin, NetworkFilecoin},
	DirectionFilecoinToATC:         {NetworkFilecoin, NetworkAethercoin},
	DirectionFractalcoinToFilecoin: {NetworkFractalcoin, NetworkFilecoin},
	DirectionFilecoinToFractalcoin: {NetworkFilecoin, NetworkFractalcoin},
}

// Directions lists every supported direction in a stable order.
var Directions = []Direction{
	DirectionATCToFractalcoin, DirectionFractalcoinToATC,
	DirectionATCToFilecoin, DirectionFilecoinToATC,
	DirectionFractalcoinToFilecoin, DirectionFilecoinToFractalcoin,
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := directions[d]; !ok {
		return "", &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", s)}
	}
	return d, nil
}

// Networks returns the source and destination of d.
func (d Direction) Networks() (source, destination NetworkType, ok bool) {
	pair, ok := directions[d]
	return pair[0], pair[1], ok
}

// DirectionBetween is the inverse of Direction.Networks.
func DirectionBetween(source, destination NetworkType) (Direction, bool) {
	for d, pair := range directions {
		if pair[0] == source && pair[1] == destination {
			return d, true
		}
	}
	return "", false
}

// Transaction is one cross-ledger transfer. Amount and Fee are decimal
// strings and are never handled as floats.
type Transaction struct {
	ID                 string                 `json:"id"`
	UserID             string                 `json:"user_id"`
	SourceNetwork      NetworkType            `json:"source_network"`
	DestinationNetwork NetworkType            `json:"destination_network"`
	Direction          Direction              `json:"direction"`
	SourceAddress      string                 `json:"source_address"`
	DestinationAddress string                 `json:"destination_address"`
	Amount             string                 `json:"amount"`
	Fee                string                 `json:"fee"`
	Status             Status                 `json:"status"`
	SourceTxHash       string                 `json:"source_tx_hash,omitempty"`
	DestinationTxHash  string                 `json:"destination_tx_hash,omitempty"`
	Validations        map[string]interface{} `json:"validations"`
	Metadata           map[string]interface{} `json:"metadata"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	// Version increases by one with every persisted change and backs the
	// store's optimistic concurrency check.
	Version int64 `json:"version"`
}

// Clone returns a deep copy so callers never share maps with the store.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Validations = cloneMap(t.Validations)
	c.Metadata = cloneMap(t.Metadata)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if inner, ok := v.(map[string]interface{}); ok {
			v = cloneMap(inner)
		}
		out[k] = v
	}
	return out
}
