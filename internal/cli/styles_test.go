package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1500.00", FormatMoney(1500))
	assert.Equal(t, "$0.10", FormatMoney(0.1))
	assert.Equal(t, "-$42.50", FormatMoney(-42.5))
}

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		status model.PaymentStatus
		color  any
	}{
		{model.StatusPaid, SuccessColor},
		{model.StatusPaidEarly, SuccessColor},
		{model.StatusReceived, SuccessColor},
		{model.StatusOverdue, ErrorColor},
		{model.StatusDueSoon, WarningColor},
		{model.StatusPartial, WarningColor},
		{model.StatusPending, SubtleColor},
		{model.StatusNotExpected, SubtleColor},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.color, StatusStyle(tt.status).GetForeground())
			assert.Contains(t, FormatStatus(tt.status), string(tt.status))
		})
	}
}

func TestProgress(t *testing.T) {
	var out strings.Builder
	p := NewProgress(&out, 3, "Materializing windows")
	p.Add()
	p.Set(3)
	assert.Contains(t, out.String(), "Materializing windows")
}

func TestTableHeader(t *testing.T) {
	header := TableHeader("ID", "NAME", "AMOUNT")
	assert.Equal(t, 2, strings.Count(header, "\t"))
	assert.Contains(t, header, "NAME")
}
