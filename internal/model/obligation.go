package model

import (
	"fmt"
	"math"
	"time"
)

// Frequency is the recurrence cadence of an obligation.
type Frequency string

// Supported recurrence frequencies.
const (
	FrequencyWeekly      Frequency = "weekly"
	FrequencyBiweekly    Frequency = "biweekly"
	FrequencySemimonthly Frequency = "semimonthly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyAnnual      Frequency = "annual"
)

// Frequencies lists every supported frequency in ascending interval order.
var Frequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencySemimonthly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencyAnnual,
}

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFrequency converts user input into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.IsValid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}

// Direction distinguishes money owed from money expected.
type Direction string

const (
	// DirectionOutflow is a bill: money leaving the account.
	DirectionOutflow Direction = "outflow"
	// DirectionInflow is income: money arriving in the account.
	DirectionInflow Direction = "inflow"
)

// Obligation is a recurring bill or income stream.
type Obligation struct {
	ReferenceDate  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ID             string
	OwnerID        string
	CustomName     string
	Frequency      Frequency
	Direction      Direction
	TransactionIDs []string
	Amount         float64
	CategoryID     int
	IsActive       bool
}

// AmountPerOccurrence is the unsigned amount expected for each occurrence.
func (o *Obligation) AmountPerOccurrence() float64 {
	return math.Abs(o.Amount)
}

// DisplayName returns the custom name, falling back to the identifier.
func (o *Obligation) DisplayName() string {
	if o.CustomName != "" {
		return o.CustomName
	}
	return o.ID
}

// HasTransaction reports whether the transaction is associated with the obligation.
func (o *Obligation) HasTransaction(id string) bool {
	for _, existing := range o.TransactionIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the obligation.
func (o *Obligation) Clone() *Obligation {
	c := *o
	c.TransactionIDs = append([]string(nil), o.TransactionIDs...)
	return &c
}
