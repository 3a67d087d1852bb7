package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Day returns midnight UTC on the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ObligationBuilder provides a fluent interface for constructing test
// obligations. The zero configuration is an active monthly bill of $100
// referenced on 2025-01-15.
type ObligationBuilder struct {
	o model.Obligation
}

// NewObligation starts a builder for an obligation with the given ID.
func NewObligation(id string) *ObligationBuilder {
	return &ObligationBuilder{o: model.Obligation{
		ID:            id,
		CustomName:    id,
		Frequency:     model.FrequencyMonthly,
		Direction:     model.DirectionOutflow,
		Amount:        100,
		ReferenceDate: Day(2025, time.January, 15),
		IsActive:      true,
	}}
}

// Named sets the display name.
func (b *ObligationBuilder) Named(name string) *ObligationBuilder {
	b.o.CustomName = name
	return b
}

// Every sets the frequency.
func (b *ObligationBuilder) Every(f model.Frequency) *ObligationBuilder {
	b.o.Frequency = f
	return b
}

// Amount sets the amount per occurrence.
func (b *ObligationBuilder) Amount(amount float64) *ObligationBuilder {
	b.o.Amount = amount
	return b
}

// From sets the reference date.
func (b *ObligationBuilder) From(ref time.Time) *ObligationBuilder {
	b.o.ReferenceDate = ref
	return b
}

// Income marks the obligation as an inflow.
func (b *ObligationBuilder) Income() *ObligationBuilder {
	b.o.Direction = model.DirectionInflow
	return b
}

// InCategory sets the category ID.
func (b *ObligationBuilder) InCategory(id int) *ObligationBuilder {
	b.o.CategoryID = id
	return b
}

// Inactive marks the obligation inactive.
func (b *ObligationBuilder) Inactive() *ObligationBuilder {
	b.o.IsActive = false
	return b
}

// Build returns a copy of the configured obligation.
func (b *ObligationBuilder) Build() *model.Obligation {
	return b.o.Clone()
}

// Txn builds a debit of amount on the given date. The hash is derived from
// the ID so distinct IDs never collide on duplicate detection.
func Txn(id string, on time.Time, amount float64) model.Transaction {
	return model.Transaction{
		ID:           id,
		Hash:         fmt.Sprintf("hash-%s", id),
		Date:         on,
		Name:         "Payment " + id,
		MerchantName: "Payee",
		Amount:       -amount,
		AccountID:    "test-account",
		Type:         "DEBIT",
	}
}
