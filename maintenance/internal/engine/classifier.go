package engine

import (
	"strings"

	"smart-campus-maintenance/maintenance/internal/models"
)

var (
	highKeywords = []string{
		"fire", "smoke", "spark", "burning", "shock", "electrocut", "short circuit",
		"exposed wire", "gas leak", "flood", "no power", "power outage", "no water",
		"overflow", "burst", "collapsed", "emergency", "dangerous",
	}
	mediumKeywords = []string{
		"not working", "broken", "leak", "damaged", "blocked", "clogged", "slow",
		"no internet", "disconnect", "flicker", "tripping", "stuck", "noise", "overheat",
	}
	lowKeywords = []string{
		"minor", "loose", "scratch", "paint", "cosmetic", "dirty", "stain", "squeak",
		"dust", "replace bulb", "request",
	}
)

var assetDefaults = map[string]models.Severity{
	"fire_alarm":        models.SeverityCritical,
	"fire_extinguisher": models.SeverityCritical,
	"elevator":          models.SeverityHigh,
	"transformer":       models.SeverityHigh,
	"water_pump":        models.SeverityHigh,
	"router":            models.SeverityHigh,
	"access_point":      models.SeverityMedium,
	"projector":         models.SeverityMedium,
	"computer":          models.SeverityMedium,
	"air_conditioner":   models.SeverityMedium,
	"water_cooler":      models.SeverityMedium,
	"geyser":            models.SeverityMedium,
	"fan":               models.SeverityLow,
	"light":             models.SeverityLow,
	"furniture":         models.SeverityLow,
	"whiteboard":        models.SeverityLow,
}

// ClassifyPriority derives a severity from free text. Keyword sets are
// checked high, then medium, then low; the first set with a hit wins.
// Without a hit the asset type default applies, and medium otherwise.
func ClassifyPriority(title string, description string, assetType string) models.Severity {
	text := strings.ToLower(title + " " + description)
	switch {
	case containsAny(text, highKeywords):
		return models.SeverityHigh
	case containsAny(text, mediumKeywords):
		return models.SeverityMedium
	case containsAny(text, lowKeywords):
		return models.SeverityLow
	}
	if sev, ok := assetDefaults[normalizeAssetType(assetType)]; ok {
		return sev
	}
	return models.SeverityMedium
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func normalizeAssetType(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(raw)
}
