package ledger

import (
	"fmt"

	"sitcomledger/pkg/domain"
)

// AwardPolicy grants CompetenceID automatically once a student's approved
// attendances of ActivityID reach Required. The grant happens inside the
// approval's transaction and carries the approval's term.
type AwardPolicy struct {
	ActivityID   domain.ActivityID   `mapstructure:"activity_id" json:"activity_id"`
	CompetenceID domain.CompetenceID `mapstructure:"competence_id" json:"competence_id"`
	Required     int                 `mapstructure:"required" json:"required"`
}

// Validate reports policies that could never fire.
func (p AwardPolicy) Validate() error {
	if p.Required < 1 {
		return fmt.Errorf("award policy %d->%d: required must be positive, got %d", p.ActivityID, p.CompetenceID, p.Required)
	}
	return nil
}

// triggered reports whether the approval just appended brings the count of
// ActivityID to exactly Required. Firing on equality keeps the award single
// even when later approvals of the same activity arrive.
func (p AwardPolicy) triggered(approved domain.ActivityID, history []domain.ActivityID) bool {
	if approved != p.ActivityID {
		return false
	}
	count := 0
	for _, a := range history {
		if a == p.ActivityID {
			count++
		}
	}
	return count == p.Required
}
