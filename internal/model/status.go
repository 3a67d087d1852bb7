package model

// PaymentStatus is the reconciliation state of a period record. Bills
// (outflow) and income (inflow) use separate value sets that share the
// same decision order.
type PaymentStatus string

// Outflow statuses.
const (
	StatusPending   PaymentStatus = "PENDING"
	StatusDueSoon   PaymentStatus = "DUE_SOON"
	StatusPartial   PaymentStatus = "PARTIAL"
	StatusOverdue   PaymentStatus = "OVERDUE"
	StatusPaid      PaymentStatus = "PAID"
	StatusPaidEarly PaymentStatus = "PAID_EARLY"
)

// Inflow-only statuses. Income also uses PENDING, PARTIAL and OVERDUE.
const (
	StatusNotExpected PaymentStatus = "NOT_EXPECTED"
	StatusReceived    PaymentStatus = "RECEIVED"
)

// IsValidFor reports whether the status belongs to the direction's value set.
func (s PaymentStatus) IsValidFor(d Direction) bool {
	switch d {
	case DirectionOutflow:
		switch s {
		case StatusPending, StatusDueSoon, StatusPartial, StatusOverdue, StatusPaid, StatusPaidEarly:
			return true
		}
	case DirectionInflow:
		switch s {
		case StatusNotExpected, StatusPending, StatusPartial, StatusOverdue, StatusReceived:
			return true
		}
	}
	return false
}

// IsComplete reports whether the status means nothing further is owed.
func (s PaymentStatus) IsComplete() bool {
	return s == StatusPaid || s == StatusPaidEarly || s == StatusReceived
}

// PaymentType tags how a matched transaction relates to its occurrence.
type PaymentType string

// Payment types recorded alongside each match.
const (
	PaymentTypeRegular        PaymentType = "REGULAR"
	PaymentTypeAdvance        PaymentType = "ADVANCE"
	PaymentTypeCatchUp        PaymentType = "CATCH_UP"
	PaymentTypeExtraPrincipal PaymentType = "EXTRA_PRINCIPAL"
)
