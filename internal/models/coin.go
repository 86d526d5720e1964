package models

import (
	"time"
)

// Transaction kinds and well-known reasons recorded on ledger entries.
const (
	KindCredit = "CREDIT"
	KindDebit  = "DEBIT"

	ReasonPurchase        = "purchase"
	ReasonRefund          = "refund"
	ReasonImageGeneration = "image_generation"
)

type CoinBalance struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Amount    int64     `json:"amount" db:"amount"` // smallest coin unit, never negative
	Version   int       `json:"-" db:"version"`     // for optimistic locking
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CoinTransaction struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Kind         string    `json:"kind" db:"kind"` // DEBIT or CREDIT
	Amount       int64     `json:"amount" db:"amount"`
	Reason       string    `json:"reason" db:"reason"`
	ReferenceID  *string   `json:"reference_id,omitempty" db:"reference_id"` // idempotency key for credits
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type CoinPackage struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	CoinAmount int64     `json:"coin_amount" db:"coin_amount"`
	Price      int64     `json:"price" db:"price"` // in cents
	Currency   string    `json:"currency" db:"currency"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	SortOrder  int       `json:"sort_order" db:"sort_order"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
