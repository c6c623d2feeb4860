// README: Scoring service ranks technicians by skill, proximity and workload.
package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldops/internal/geo"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/location"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

type Technicians interface {
	ListActive(ctx context.Context, tenantID types.ID) ([]technician.Technician, error)
	TechniciansForService(ctx context.Context, tenantID, serviceID types.ID) ([]technician.Skill, error)
	HasTimeOff(ctx context.Context, userID types.ID, start, end time.Time) (bool, error)
}

type Appointments interface {
	Get(ctx context.Context, tenantID, id types.ID) (*appointment.Appointment, error)
	FindByTechnicianAndDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) ([]appointment.Appointment, error)
	CountActiveOnDate(ctx context.Context, tenantID, technicianID types.ID, date time.Time) (int, error)
}

type Locator interface {
	Current(ctx context.Context, tenantID, userID types.ID) (*location.TechnicianLocation, error)
}

type Service struct {
	technicians  Technicians
	appointments Appointments
	locations    Locator
	parallelism  int
}

const defaultParallelism = 8

func NewService(technicians Technicians, appointments Appointments, locations Locator) *Service {
	return &Service{
		technicians:  technicians,
		appointments: appointments,
		locations:    locations,
		parallelism:  defaultParallelism,
	}
}

// Rank scores every active technician of the tenant who is not on time-off that day and
// returns them by descending total. Equal totals keep roster order.
func (s *Service) Rank(ctx context.Context, q RankQuery) ([]TechnicianScore, error) {
	if q.TenantID == "" || q.ServiceID == "" || q.Date.IsZero() {
		return nil, fmt.Errorf("tenant, service and date are required: %w", types.ErrInvalidInput)
	}
	if q.Location != nil {
		if err := geo.Validate(*q.Location); err != nil {
			return nil, err
		}
	}

	techs, err := s.technicians.ListActive(ctx, q.TenantID)
	if err != nil {
		return nil, err
	}
	skills, err := s.technicians.TechniciansForService(ctx, q.TenantID, q.ServiceID)
	if err != nil {
		return nil, err
	}
	levels := make(map[types.ID]technician.SkillLevel, len(skills))
	for _, sk := range skills {
		levels[sk.UserID] = sk.Level
	}
	excluded := make(map[types.ID]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = true
	}

	start, end := appointment.DayBounds(q.Date)
	scored := make([]*TechnicianScore, len(techs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, t := range techs {
		if excluded[t.ID] {
			continue
		}
		g.Go(func() error {
			off, err := s.technicians.HasTimeOff(gctx, t.ID, start, end)
			if err != nil || off {
				return err
			}
			jobs, err := s.appointments.CountActiveOnDate(gctx, q.TenantID, t.ID, start)
			if err != nil {
				return err
			}

			level := levels[t.ID]
			sc := &TechnicianScore{
				UserID:        t.ID,
				Name:          t.Name,
				SkillLevel:    level,
				SkillScore:    level.Score(),
				WorkloadScore: WorkloadScore(jobs),
				JobsToday:     jobs,
			}
			if q.Location != nil {
				s.applyProximity(gctx, q.TenantID, sc, *q.Location)
			}
			sc.TotalScore = sc.SkillScore + sc.ProximityScore + sc.WorkloadScore
			scored[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]TechnicianScore, 0, len(scored))
	for _, sc := range scored {
		if sc != nil {
			out = append(out, *sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})
	return out, nil
}

// applyProximity leaves the proximity component at zero when the technician's position
// is unknown or cannot be read.
func (s *Service) applyProximity(ctx context.Context, tenantID types.ID, sc *TechnicianScore, target types.Point) {
	loc, err := s.locations.Current(ctx, tenantID, sc.UserID)
	if err != nil {
		log.Printf("scoring: location lookup failed: user=%s err=%v", sc.UserID, err)
		return
	}
	if loc == nil {
		return
	}
	d := geo.DistanceKm(loc.Point(), target)
	sc.DistanceKm = &d
	sc.ProximityScore = ProximityScore(d)
}

// ProximityScore is 50 at 0 km falling linearly to 0 at 50 km and beyond.
func ProximityScore(distanceKm float64) int {
	return clampedScore(proximityWeight * (1 - distanceKm/proximityRangeKm))
}

// WorkloadScore is 50 with no jobs falling linearly to 0 at 8 jobs and beyond.
func WorkloadScore(jobsToday int) int {
	return clampedScore(workloadWeight * (1 - float64(jobsToday)/dailyCapacity))
}

func clampedScore(v float64) int {
	return max(0, int(math.Round(v)))
}

// SuggestReassignment proposes another technician for jobID when its technician has
// later appointments the same day. It returns nil when there is nothing to suggest.
func (s *Service) SuggestReassignment(ctx context.Context, tenantID, jobID types.ID) (*Reassignment, error) {
	job, err := s.appointments.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.TechnicianID == nil {
		return nil, nil
	}
	current := *job.TechnicianID

	day, err := s.appointments.FindByTechnicianAndDate(ctx, tenantID, current, job.ScheduledAt)
	if err != nil {
		return nil, err
	}
	var later []appointment.Appointment
	for _, a := range day {
		if a.ID != job.ID && a.Status.Active() && a.ScheduledAt.After(job.ScheduledAt) {
			later = append(later, a)
		}
	}
	if len(later) == 0 {
		return nil, nil
	}

	ranked, err := s.Rank(ctx, RankQuery{
		TenantID:  tenantID,
		ServiceID: job.ServiceID,
		Date:      job.ScheduledAt,
		Location:  job.Location,
		Exclude:   []types.ID{current},
	})
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	alt := ranked[0]
	return &Reassignment{
		JobID:               job.ID,
		CurrentTechnicianID: current,
		Alternative:         alt,
		AffectedJobs:        later,
		Reason:              reason(alt, len(later)),
	}, nil
}

func reason(alt TechnicianScore, affected int) string {
	skill := "no recorded"
	if alt.SkillLevel != technician.SkillNone {
		skill = strings.ToLower(string(alt.SkillLevel))
	}
	return fmt.Sprintf("%s (%s skill, score %d) can take over; %d later job(s) would move",
		alt.Name, skill, alt.TotalScore, affected)
}
