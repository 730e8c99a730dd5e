package validate

import (
	"fmt"

	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

// Reconcile reports sections whose total disagrees with the sum of by_type.
// Totals are left as the model reported them.
func Reconcile(r entity.ExtractionResult) []string {
	var flags []string
	if sum := r.Doors.ByType.Sum(); sum != r.Doors.Total {
		flags = append(flags, mismatch(SectionDoors, r.Doors.Total, sum))
	}
	if sum := r.Windows.ByType.Sum(); sum != r.Windows.Total {
		flags = append(flags, mismatch(SectionWindows, r.Windows.Total, sum))
	}
	return flags
}

func mismatch(section string, total, sum int) string {
	return fmt.Sprintf("%s.total (%d) does not match sum of %s.by_type (%d)", section, total, section, sum)
}
