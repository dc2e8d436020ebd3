// Package kernel implements the normalization rules shared by every other
// component: date encoding, exchange-code dialects, and contract/stock
// symbol case conventions. It is pure and stateless — no I/O, no logging.
package kernel

import "errors"

// Sentinel errors for the kernel's typed failure contract. Callers use
// errors.Is against these, never string matching.
var (
	ErrInvalidDate     = errors.New("kernel: invalid date")
	ErrUnknownExchange = errors.New("kernel: unknown exchange")
	ErrInvalidSymbol   = errors.New("kernel: invalid symbol")
)
