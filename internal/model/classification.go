package model

// Category 分类枚举，取值固定
type Category string

const (
	CategoryWork          Category = "Work / Professional"
	CategoryPersonal      Category = "Personal"
	CategorySupport       Category = "Support / Service Requests"
	CategoryPromotions    Category = "Promotions / Marketing"
	CategorySpam          Category = "Spam / Junk"
	CategoryFinance       Category = "Finance / Bills"
	CategoryMeetings      Category = "Meetings / Scheduling"
	CategoryNotifications Category = "Notifications / Updates"
	CategoryOther         Category = "Other"
)

var categories = []Category{
	CategoryWork,
	CategoryPersonal,
	CategorySupport,
	CategoryPromotions,
	CategorySpam,
	CategoryFinance,
	CategoryMeetings,
	CategoryNotifications,
	CategoryOther,
}

// Categories returns the closed category set in prompt order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory clamps anything outside the set to Other.
func ParseCategory(s string) Category {
	c := Category(s)
	if c.Valid() {
		return c
	}
	return CategoryOther
}

type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Summary    string   `json:"summary"`
}

// ClampConfidence 将置信度限制在 [0,1]
func ClampConfidence(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
