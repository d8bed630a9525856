// README: Restaurant catalog model: location, hours, menu, delivery radius.
package restaurants

import (
	"time"

	"dishpatch/internal/types"
)

type MenuItem struct {
	ID        types.ID
	Name      string
	UnitPrice types.Money
	Available bool
}

// DayWindow is an opening window in minutes since local midnight.
// A window with Close < Open spans midnight (e.g. 18:00-02:00).
type DayWindow struct {
	Open   int
	Close  int
	Closed bool
}

// WeekHours holds one window per weekday, indexed by time.Weekday.
type WeekHours [7]DayWindow

type Restaurant struct {
	ID               types.ID
	Name             string
	Location         types.Point
	DeliveryRadiusKm float64
	Hours            WeekHours
	Menu             map[types.ID]MenuItem
}

// OpenAt reports whether the restaurant is open at t, honoring windows that
// span midnight: such a window also claims the early hours of the next day.
func (r *Restaurant) OpenAt(t time.Time) bool {
	min := t.Hour()*60 + t.Minute()

	today := r.Hours[t.Weekday()]
	if !today.Closed {
		if today.Open <= today.Close {
			if min >= today.Open && min < today.Close {
				return true
			}
		} else if min >= today.Open {
			return true
		}
	}

	prev := r.Hours[(t.Weekday()+6)%7]
	if !prev.Closed && prev.Close < prev.Open && min < prev.Close {
		return true
	}
	return false
}

// Item returns the menu item if it exists and is currently orderable.
func (r *Restaurant) Item(id types.ID) (MenuItem, bool) {
	item, ok := r.Menu[id]
	if !ok || !item.Available {
		return MenuItem{}, false
	}
	return item, true
}
