package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// CatalogResult reports a catalog extension and the per-obligation events it
// triggered.
type CatalogResult struct {
	Created []model.PeriodWindow
	Events  []*EventResult
}

// ExtendCatalog adds every window overlapping [from, to] that the catalog
// lacks, then materializes records for each active obligation in the new
// windows. An obligation whose event is rejected is logged and skipped so
// the others still receive their records. progress, when non-nil, is called
// after each obligation.
func (e *Engine) ExtendCatalog(ctx context.Context, from, to time.Time, progress func(done, total int)) (*CatalogResult, error) {
	all, err := calendar.PartitionAll(from, to)
	if err != nil {
		return nil, err
	}

	result := &CatalogResult{}
	var created []model.PeriodWindow
	for _, g := range model.Granularities {
		for _, w := range all[g] {
			_, err := e.store.GetWindow(ctx, w.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, common.ErrWindowNotFound) {
				return nil, fmt.Errorf("failed to check window %s: %w", w.ID, err)
			}
			created = append(created, w)
		}
	}
	if len(created) == 0 {
		return result, nil
	}

	if err := e.store.SaveWindows(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to save windows: %w", err)
	}
	result.Created = created

	ids := make([]string, len(created))
	for i, w := range created {
		ids[i] = w.ID
	}

	obligations, err := e.store.ListObligations(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}

	for i, o := range obligations {
		res, err := e.OnObligationEvent(ctx, o.ID, EventWindowCreated, EventPayload{WindowIDs: ids})
		if err != nil {
			common.LogError(ctx, err, "Skipping obligation for new windows", common.Fields{
				"obligation_id": o.ID,
			})
		} else {
			result.Events = append(result.Events, res)
		}
		if progress != nil {
			progress(i+1, len(obligations))
		}
	}

	common.LogInfo(ctx, "Extended window catalog", common.Fields{
		"windows":     len(created),
		"obligations": len(obligations),
	})
	return result, nil
}
