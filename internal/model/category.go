package model

import "time"

// CategoryType indicates whether a category is for income, expense, or system use.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for income obligations.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for bills.
	CategoryTypeExpense CategoryType = "expense"
	// CategoryTypeSystem represents system-managed categories (e.g., transfers).
	CategoryTypeSystem CategoryType = "system"
)

// CategoryTypeFor maps an obligation direction to its category type.
func CategoryTypeFor(d Direction) CategoryType {
	if d == DirectionInflow {
		return CategoryTypeIncome
	}
	return CategoryTypeExpense
}

// Category groups obligations for reporting.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	Type        CategoryType
	ID          int
	IsActive    bool
}
