package fieldconfig

import (
	"context"
	"fmt"
	"time"

	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/store"
)

// PropagateRenames rewrites metadata[fieldKey] on every lead of the company
// whose value is a renamed option label. renames maps old label to new.
// Each lead is matched against its original value and updated at most once,
// so swapping two labels does not chain. Returns the number of leads updated.
func PropagateRenames(ctx context.Context, q store.Querier, d store.Dialect, companyID, fieldKey string, renames map[string]string) (int, error) {
	if len(renames) == 0 {
		return 0, nil
	}
	rows, err := store.Select(ctx, q, d, "leads", []store.Filter{store.Eq("company_id", companyID)})
	if err != nil {
		return 0, fmt.Errorf("load leads: %w", err)
	}

	now := time.Now().UTC()
	updated := 0
	for _, row := range rows {
		meta := fields.DecodeMetadata(row["metadata"])
		old, ok := meta[fieldKey].(string)
		if !ok {
			continue
		}
		renamed, ok := renames[old]
		if !ok {
			continue
		}
		meta[fieldKey] = renamed
		encoded, err := meta.Encode()
		if err != nil {
			return updated, fmt.Errorf("encode metadata for lead %v: %w", row["id"], err)
		}
		patch := map[string]any{"metadata": encoded, "updated_at": now}
		if _, err := store.Update(ctx, q, d, "leads", patch, []store.Filter{store.Eq("id", row["id"])}); err != nil {
			return updated, fmt.Errorf("update lead %v: %w", row["id"], err)
		}
		updated++
	}
	return updated, nil
}
