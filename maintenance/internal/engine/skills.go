package engine

import "smart-campus-maintenance/maintenance/internal/models"

// Requirement is the staff role and skill a complaint category needs.
// Cleaners carry a single skill, so Skill is empty for them.
type Requirement struct {
	Role  models.Role
	Skill models.Skill
}

var categoryRequirements = map[models.Category]Requirement{
	models.CategoryElectrical:  {Role: models.RoleTechnician, Skill: models.SkillElectrician},
	models.CategoryPlumbing:    {Role: models.RoleTechnician, Skill: models.SkillPlumber},
	models.CategoryFurniture:   {Role: models.RoleTechnician, Skill: models.SkillMaintenance},
	models.CategoryITNetwork:   {Role: models.RoleTechnician, Skill: models.SkillIT},
	models.CategoryWifi:        {Role: models.RoleTechnician, Skill: models.SkillIT},
	models.CategoryCleanliness: {Role: models.RoleCleaner},
	models.CategoryOther:       {Role: models.RoleTechnician, Skill: models.SkillMaintenance},
}

func RequirementFor(category models.Category) (Requirement, bool) {
	req, ok := categoryRequirements[category]
	return req, ok
}

func (r Requirement) filter() StaffFilter {
	return StaffFilter{Role: r.Role, Skill: r.Skill, AvailableOnly: true, ActiveOnly: true}
}

// categoriesServedBy lists the categories a staff member can be assigned.
func categoriesServedBy(staff models.StaffMember) []models.Category {
	var out []models.Category
	for _, category := range models.AllCategories() {
		req := categoryRequirements[category]
		if req.Role != staff.Role {
			continue
		}
		if req.Skill != "" && req.Skill != staff.Skill {
			continue
		}
		out = append(out, category)
	}
	return out
}
