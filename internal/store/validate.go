package store

import (
	"fmt"

	"boletin-backend/internal/analysis"
)

// validateRecord rejects structurally invalid records before they reach
// the collection. The unique date index assumes well-formed dates.
func validateRecord(rec analysis.Record) error {
	if rec.Date == "" {
		return fmt.Errorf("record validation: date is required")
	}
	if !analysis.ValidDate(rec.Date) {
		return fmt.Errorf("record validation: date %q is not in YYYY-MM-DD format", rec.Date)
	}
	if rec.Section != analysis.SectionLegislation {
		return fmt.Errorf("record validation: unsupported section %q", rec.Section)
	}
	if rec.Metadata.Status == "" {
		return fmt.Errorf("record validation: metadata.status is required")
	}
	if rec.Metadata.CreatedAt.IsZero() {
		return fmt.Errorf("record validation: metadata.created_at is required")
	}
	return nil
}
