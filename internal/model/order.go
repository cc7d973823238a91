// Package model holds the canonical order representation and the derivation
// of composite secondary-index keys from base fields.
package model

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	StatusUnverified        OrderStatus = "UNVERIFIED"
	StatusOpen              OrderStatus = "OPEN"
	StatusFilled            OrderStatus = "FILLED"
	StatusCancelled         OrderStatus = "CANCELLED"
	StatusExpired           OrderStatus = "EXPIRED"
	StatusError             OrderStatus = "ERROR"
	StatusInsufficientFunds OrderStatus = "INSUFFICIENT_FUNDS"
)

// Terminal reports whether the status is absorbing: once reached, no further
// transition ever occurs. INSUFFICIENT_FUNDS is not terminal; an order can
// return to OPEN on re-check.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusError:
		return true
	}
	return false
}

// OrderType distinguishes the supported trade-intent encodings.
type OrderType string

const (
	TypeDutch   OrderType = "DUTCH"
	TypeDutchV2 OrderType = "DUTCH_V2"
	TypeLimit   OrderType = "LIMIT"
	TypeRelay   OrderType = "RELAY"
)

// SettledAmount records one output token amount settled at fill time.
type SettledAmount struct {
	Token  common.Address  `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// Order is a signed, off-chain trade intent keyed by its hash. Base fields
// are written by the submission path; fill-completion fields only by the
// lifecycle tracker. Composite index values are always derived from the base
// fields on write, never stored authoritatively on the struct.
type Order struct {
	OrderHash    common.Hash     `json:"orderHash"`
	OrderType    OrderType       `json:"orderType"`
	Offerer      common.Address  `json:"offerer"`
	Filler       *common.Address `json:"filler,omitempty"`
	ChainID      uint64          `json:"chainId"`
	OrderStatus  OrderStatus     `json:"orderStatus"`
	Pair         string          `json:"pair"`
	SellToken    common.Address  `json:"sellToken"`
	CreatedAt    int64           `json:"createdAt"`
	Deadline     int64           `json:"deadline"`
	Nonce        string          `json:"nonce"`
	EncodedOrder string          `json:"encodedOrder"`
	Signature    string          `json:"signature"`

	// Auction context, present on dutch orders.
	QuoteID         *uuid.UUID `json:"quoteId,omitempty"`
	DecayStartBlock uint64     `json:"decayStartBlock,omitempty"`

	// Fill completion, set when the order transitions to FILLED.
	TxHash         *common.Hash    `json:"txHash,omitempty"`
	FillBlock      uint64          `json:"fillBlock,omitempty"`
	SettledAmounts []SettledAmount `json:"settledAmounts,omitempty"`
}

// Field names a base field usable in composite index keys and equality
// filters. The set is closed; the router only accepts filters over it.
type Field string

const (
	FieldOfferer     Field = "offerer"
	FieldFiller      Field = "filler"
	FieldChainID     Field = "chainId"
	FieldOrderStatus Field = "orderStatus"
	FieldPair        Field = "pair"
)

// FieldValue renders the canonical string form of a base field, the form
// used both in stored composite keys and in normalized filter values. An
// unset filler renders as the zero address so exclusive-filler and open
// orders live under distinct, queryable partitions.
func (o *Order) FieldValue(f Field) string {
	switch f {
	case FieldOfferer:
		return NormalizeAddress(o.Offerer.Hex())
	case FieldFiller:
		if o.Filler == nil {
			return NormalizeAddress(common.Address{}.Hex())
		}
		return NormalizeAddress(o.Filler.Hex())
	case FieldChainID:
		return strconv.FormatUint(o.ChainID, 10)
	case FieldOrderStatus:
		return string(o.OrderStatus)
	case FieldPair:
		return o.Pair
	}
	return ""
}

// NormalizeAddress lowercases a hex address so composite keys compare
// byte-for-byte regardless of checksum casing at the edge.
func NormalizeAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}
