// internal/recommendations/transitions.go
package recommendations

import "rent360-leads/internal/models"

// Action is a broker's update on one recommendation.
type Action string

const (
	ActionView    Action = "view"
	ActionContact Action = "contact"
	ActionConvert Action = "convert"
	ActionDismiss Action = "dismiss"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionContact, ActionConvert, ActionDismiss:
		return true
	}
	return false
}

var transitions = map[Action]struct {
	to   models.RecommendationStatus
	from []models.RecommendationStatus
}{
	ActionView:    {models.StatusViewed, []models.RecommendationStatus{models.StatusNew}},
	ActionContact: {models.StatusContacted, []models.RecommendationStatus{models.StatusNew, models.StatusViewed}},
	ActionConvert: {models.StatusConverted, []models.RecommendationStatus{models.StatusNew, models.StatusViewed, models.StatusContacted}},
	ActionDismiss: {models.StatusDismissed, []models.RecommendationStatus{models.StatusNew, models.StatusViewed, models.StatusContacted}},
}

// nextStatus resolves an action against the current status. unchanged is true
// when the action is a repeat view, which leaves the row as it is.
func nextStatus(from models.RecommendationStatus, a Action) (to models.RecommendationStatus, unchanged, ok bool) {
	if a == ActionView && from == models.StatusViewed {
		return from, true, true
	}
	t, known := transitions[a]
	if !known {
		return "", false, false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, false, true
		}
	}
	return "", false, false
}
