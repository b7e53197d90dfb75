// README: Common money value object used across modules.
package types

import "fmt"

// DefaultCurrency is applied when a request omits the currency.
const DefaultCurrency = "PKR"

// Money is an amount in minor units (paisa, cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) Times(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
