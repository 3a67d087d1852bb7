package model

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"
)

// Transaction is an external financial event. Its date and amount are
// immutable once set; only the obligation association may change.
type Transaction struct {
	Date         time.Time
	ID           string
	Name         string // Raw transaction description
	MerchantName string // Cleaned merchant name
	AccountID    string
	Hash         string
	Type         string // Source transaction type (e.g., DEBIT, CREDIT, CHECK)
	CheckNumber  string
	Amount       float64 // Signed as reported by the source
}

// Magnitude is the unsigned amount used for matching and totals.
func (t *Transaction) Magnitude() float64 {
	return math.Abs(t.Amount)
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.MerchantName,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// TransactionSplit assigns a transaction to exactly one obligation. A split
// must be removed explicitly before the transaction can be reassigned.
type TransactionSplit struct {
	AssignedAt    time.Time
	TransactionID string
	ObligationID  string
}
