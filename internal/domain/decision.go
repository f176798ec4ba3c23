package domain

import (
	"fmt"
	"strings"
)

// Decision is the closed advisory decision enum. Raw advisory payloads are
// mapped to this type at the boundary; untyped maps never reach the risk
// engine.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// ParseDecision maps a raw advisory label onto the closed enum. Unknown
// labels degrade to Hold with an error so a misbehaving advisor can never
// cause an unguarded trade.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return DecisionBuy, nil
	case "SELL":
		return DecisionSell, nil
	case "HOLD":
		return DecisionHold, nil
	default:
		return DecisionHold, fmt.Errorf("unknown decision label %q, defaulting to HOLD", raw)
	}
}

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)
