package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"smart-campus-maintenance/maintenance/internal/models"
)

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		name        string
		title       string
		description string
		assetType   string
		want        models.Severity
	}{
		{"high keyword in title", "Sparks from socket", "", "", models.SeverityHigh},
		{"high beats medium", "Fan broken", "and there is smoke", "fan", models.SeverityHigh},
		{"medium keyword", "Projector not working", "", "projector", models.SeverityMedium},
		{"medium beats low", "Minor leak under sink", "", "", models.SeverityMedium},
		{"low keyword", "Loose chair leg", "", "", models.SeverityLow},
		{"case insensitive", "FIRE IN LAB", "", "", models.SeverityHigh},
		{"asset default", "Please check", "", "fire alarm", models.SeverityCritical},
		{"asset default normalized", "Please check", "Water-Cooler", "water-cooler", models.SeverityMedium},
		{"asset default low", "Please check", "", "fan", models.SeverityLow},
		{"unknown asset", "Please check", "", "telescope", models.SeverityMedium},
		{"nothing at all", "", "", "", models.SeverityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyPriority(tc.title, tc.description, tc.assetType))
		})
	}
}

func TestClassifyPriorityIsDeterministic(t *testing.T) {
	first := ClassifyPriority("Water overflow", "pipe burst near stairs", "water_pump")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ClassifyPriority("Water overflow", "pipe burst near stairs", "water_pump"))
	}
}

func TestRequirementForCoversEveryCategory(t *testing.T) {
	for _, category := range models.AllCategories() {
		req, ok := RequirementFor(category)
		assert.True(t, ok, "category %s has no requirement", category)
		if req.Role == models.RoleTechnician {
			assert.NotEmpty(t, req.Skill, "technician category %s needs a skill", category)
		}
	}
	_, ok := RequirementFor("Gardening")
	assert.False(t, ok)
}

func TestCategoriesServedBy(t *testing.T) {
	it := models.StaffMember{Role: models.RoleTechnician, Skill: models.SkillIT}
	assert.ElementsMatch(t, []models.Category{models.CategoryITNetwork, models.CategoryWifi}, categoriesServedBy(it))

	cleaner := models.StaffMember{Role: models.RoleCleaner, Skill: models.SkillCleaner}
	assert.Equal(t, []models.Category{models.CategoryCleanliness}, categoriesServedBy(cleaner))
}
