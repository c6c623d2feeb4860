// README: Technician dispatch scores and reassignment suggestions.
package scoring

import (
	"time"

	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

const (
	// proximityRangeKm is the distance at which the proximity component reaches zero.
	proximityRangeKm = 50.0
	proximityWeight  = 50.0
	// dailyCapacity is the job count at which the workload component reaches zero.
	dailyCapacity  = 8.0
	workloadWeight = 50.0
)

// TechnicianScore is computed per request and never stored.
// TotalScore is always SkillScore + ProximityScore + WorkloadScore.
type TechnicianScore struct {
	UserID         types.ID              `json:"userId"`
	Name           string                `json:"name"`
	SkillLevel     technician.SkillLevel `json:"skillLevel,omitempty"`
	SkillScore     int                   `json:"skillScore"`
	ProximityScore int                   `json:"proximityScore"`
	WorkloadScore  int                   `json:"workloadScore"`
	TotalScore     int                   `json:"totalScore"`
	JobsToday      int                   `json:"jobsToday"`
	DistanceKm     *float64              `json:"distanceKm,omitempty"`
}

type RankQuery struct {
	TenantID  types.ID
	ServiceID types.ID
	Date      time.Time
	Location  *types.Point
	Exclude   []types.ID
}

type Reassignment struct {
	JobID               types.ID                  `json:"jobId"`
	CurrentTechnicianID types.ID                  `json:"currentTechnicianId"`
	Alternative         TechnicianScore           `json:"alternative"`
	AffectedJobs        []appointment.Appointment `json:"affectedJobs"`
	Reason              string                    `json:"reason"`
}
