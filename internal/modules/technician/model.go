// README: Technician roster, skill levels and time-off.
package technician

import "fieldops/internal/types"

type Technician struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId"`
	Name     string   `json:"name"`
	Active   bool     `json:"active"`
}

// SkillLevel is a technician's proficiency for one service. The zero value means no
// recorded skill.
type SkillLevel string

const (
	SkillNone         SkillLevel = ""
	SkillExpert       SkillLevel = "EXPERT"
	SkillIntermediate SkillLevel = "INTERMEDIATE"
	SkillBasic        SkillLevel = "BASIC"
)

// Score maps the level onto the 0-100 skill component of a dispatch score.
func (l SkillLevel) Score() int {
	switch l {
	case SkillExpert:
		return 100
	case SkillIntermediate:
		return 60
	case SkillBasic:
		return 30
	default:
		return 0
	}
}

type Skill struct {
	UserID types.ID   `json:"userId"`
	Level  SkillLevel `json:"level"`
}
