package waste

import (
	"fmt"
	"math"
)

// Category is a disposal category returned by the classifier.
type Category string

const (
	CategoryHazard  Category = "HAZARD"
	CategoryCompost Category = "COMPOST"
	CategoryRecycle Category = "RECYCLE"
	CategoryTrash   Category = "TRASH"
)

// Categories returns all categories in priority order, highest first.
func Categories() []Category {
	return []Category{CategoryHazard, CategoryCompost, CategoryRecycle, CategoryTrash}
}

// CategoryTokens returns the category tokens as plain strings, in priority order.
func CategoryTokens() []string {
	cats := Categories()
	tokens := make([]string, len(cats))
	for i, c := range cats {
		tokens[i] = string(c)
	}
	return tokens
}

// ParseCategory accepts exactly one of the four category tokens.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Bin returns the disposal instruction shown with a result.
func (c Category) Bin() string {
	switch c {
	case CategoryHazard:
		return "Dispose in Special Hazard Bin"
	case CategoryCompost:
		return "Dispose in Compost/Organic Bin"
	case CategoryRecycle:
		return "Dispose in Recycling Bin"
	default:
		return "Dispose in General Waste Bin"
	}
}

// Color returns the bin colour for the category.
func (c Category) Color() string {
	switch c {
	case CategoryHazard:
		return "RED"
	case CategoryCompost:
		return "YELLOW"
	case CategoryRecycle:
		return "GREEN"
	default:
		return "GREY"
	}
}

func (c Category) Emoji() string {
	switch c {
	case CategoryHazard:
		return "🛑"
	case CategoryCompost:
		return "🍂"
	case CategoryRecycle:
		return "♻️"
	default:
		return "🗑️"
	}
}

// Result is a single classification outcome.
type Result struct {
	Category   Category `json:"category"`
	ItemName   string   `json:"itemName"`
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
}

// ConfidencePercent returns the confidence as a whole percentage.
func (r Result) ConfidencePercent() int {
	return int(math.Round(r.Confidence * 100))
}
