package models

import (
	"time"
)

// TransferRecord is the bookkeeping entry written after a successful
// on-chain transfer. Recipient is always the hex form.
type TransferRecord struct {
	ID        int64     `json:"id,omitempty"`
	Amount    string    `json:"amount"`
	Asset     Asset     `json:"asset"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	TxHash    string    `json:"txHash"`
	Timestamp time.Time `json:"timestamp"`
}

// Contact is an address book entry owned by a wallet address.
type Contact struct {
	ID      int64  `json:"id"`
	OwnerID string `json:"-"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// TransferQuery filters the transfer history of one wallet.
type TransferQuery struct {
	UserAddress string
	Search      string
	Currency    string
	Page        int
	Limit       int
}

// Offset returns the row offset for the requested page.
func (q TransferQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

type TransferPage struct {
	Transactions []TransferRecord `json:"transactions"`
	Pagination   Pagination       `json:"pagination"`
}

// NewPagination computes the page count for total items.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{CurrentPage: page, TotalPages: pages, TotalItems: total}
}

// TransferEvent is published downstream once a record has been stored.
type TransferEvent struct {
	ID         string         `json:"id"`
	Record     TransferRecord `json:"record"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// ExchangeRate is the last known quote for a trading pair.
type ExchangeRate struct {
	Pair      string    `json:"pair"`
	Rate      string    `json:"rate"`
	UpdatedAt time.Time `json:"updatedAt"`
}
