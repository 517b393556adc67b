package fixplan

import (
	"encoding/csv"
	"fmt"
	"io"
)

// redirectCSVHeader matches what the common redirect import plugins expect,
// plus review columns.
var redirectCSVHeader = []string{
	"source_url", "target_url", "status_code", "conflict_type", "priority", "confidence", "status",
}

// WriteRedirectCSV writes every redirect step across the plans as an
// importable CSV. Rows are emitted with status pending_review: nothing in the
// export is live until a human clears it.
func WriteRedirectCSV(w io.Writer, plans []Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(redirectCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, plan := range plans {
		for _, step := range plan.Steps {
			if step.Kind != StepRedirect301 {
				continue
			}
			record := []string{
				step.PageURL,
				step.TargetURL,
				"301",
				string(plan.ConflictType),
				fmt.Sprintf("%d", plan.Priority),
				string(plan.Confidence),
				"pending_review",
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
