package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/testutil"
)

func TestHandleRecordChange(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t, 2025)
	e, _ := newTestEngine(t, db.Storage)

	db.SaveObligation(testutil.NewObligation("gym").Build())
	db.Assign("gym", testutil.Txn("txn-jan", testutil.Day(2025, time.January, 15), 100))
	_, err := e.OnObligationEvent(ctx, "gym", EventTransactionAdded, EventPayload{})
	require.NoError(t, err)

	feb := db.MustGetRecord("gym", "monthly:2025-02")
	require.False(t, feb.IsFullyPaid)

	t.Run("engine-owned changes do not re-enter", func(t *testing.T) {
		after := feb.Clone()
		after.Status = model.StatusPaid
		after.TotalAmountPaid = 100
		after.UpdatedAt = time.Now()

		results, err := e.HandleRecordChange(ctx, feb, after)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, feb.Version, db.MustGetRecord("gym", "monthly:2025-02").Version)
	})

	db.SaveTransactions(testutil.Txn("txn-feb", testutil.Day(2025, time.February, 14), 100))
	withSplit := feb.Clone()
	withSplit.TransactionSplits = []string{"txn-feb"}

	t.Run("added split assigns and matches", func(t *testing.T) {
		results, err := e.HandleRecordChange(ctx, feb, withSplit)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, EventTransactionAdded, results[0].Kind)
		assert.NoError(t, results[0].Err())

		split, err := db.Storage.GetSplit(ctx, "txn-feb")
		require.NoError(t, err)
		assert.Equal(t, "gym", split.ObligationID)

		r := db.MustGetRecord("gym", "monthly:2025-02")
		assert.Equal(t, []string{"txn-feb"}, r.OccurrenceTransactionIDs)
		assert.True(t, r.IsFullyPaid)
	})

	t.Run("removed split unassigns and releases", func(t *testing.T) {
		results, err := e.HandleRecordChange(ctx, withSplit, feb)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, EventTransactionRemoved, results[0].Kind)

		_, err = db.Storage.GetSplit(ctx, "txn-feb")
		assert.Error(t, err)
		assert.False(t, db.MustGetRecord("gym", "monthly:2025-02").IsFullyPaid)
	})

	t.Run("split owned elsewhere is left alone", func(t *testing.T) {
		db.SaveObligation(testutil.NewObligation("pool").Build())
		db.Assign("pool", testutil.Txn("txn-pool", testutil.Day(2025, time.February, 15), 100))

		before := feb.Clone()
		before.TransactionSplits = []string{"txn-pool"}
		results, err := e.HandleRecordChange(ctx, before, feb)
		require.NoError(t, err)
		assert.Empty(t, results)

		split, err := db.Storage.GetSplit(ctx, "txn-pool")
		require.NoError(t, err)
		assert.Equal(t, "pool", split.ObligationID)
	})

	t.Run("nil after", func(t *testing.T) {
		results, err := e.HandleRecordChange(ctx, feb, nil)
		require.NoError(t, err)
		assert.Nil(t, results)
	})
}

func TestDiffObligation(t *testing.T) {
	base := testutil.NewObligation("gym").Build()
	base.TransactionIDs = []string{"a", "b"}

	t.Run("no previous version", func(t *testing.T) {
		c := diffObligation(nil, base)
		assert.True(t, c.rename && c.amount && c.schedule)
		assert.Equal(t, []string{"a", "b"}, c.added)
	})

	t.Run("nothing changed", func(t *testing.T) {
		assert.False(t, diffObligation(base, base.Clone()).any())
	})

	t.Run("transactions", func(t *testing.T) {
		cur := base.Clone()
		cur.TransactionIDs = []string{"b", "c"}
		c := diffObligation(base, cur)
		assert.Equal(t, []string{"c"}, c.added)
		assert.Equal(t, []string{"a"}, c.removed)
		assert.False(t, c.schedule)
	})

	t.Run("schedule fields", func(t *testing.T) {
		edits := map[string]func(o *model.Obligation){
			"frequency": func(o *model.Obligation) { o.Frequency = model.FrequencyWeekly },
			"reference": func(o *model.Obligation) { o.ReferenceDate = o.ReferenceDate.AddDate(0, 0, 1) },
			"active":    func(o *model.Obligation) { o.IsActive = false },
			"direction": func(o *model.Obligation) { o.Direction = model.DirectionInflow },
		}
		for name, edit := range edits {
			cur := base.Clone()
			edit(cur)
			c := diffObligation(base, cur)
			assert.True(t, c.schedule, name)
			assert.False(t, c.amount, name)
		}
	})

	t.Run("sign of amount is not a change", func(t *testing.T) {
		cur := base.Clone()
		cur.Amount = -cur.Amount
		assert.False(t, diffObligation(base, cur).amount)
	})
}
