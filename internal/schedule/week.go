package schedule

import (
	"time"

	"github.com/hitoshi/contentplanner/internal/model"
)

// WeekDays は充足判定の対象となる連続日数。
const WeekDays = 7

// MissingSlot は空いている投稿枠がある暦日と、その空き数を表す。
type MissingSlot struct {
	Date  time.Time
	Count int
}

// WeekFill は7日間の投稿枠の充足状況を表す。
type WeekFill struct {
	IsFilled     bool
	MissingSlots []MissingSlot
}

// CheckWeekFilled はfromの日から7日間の投稿枠がすべて埋まっているかを判定する。
// 枠が0の曜日は常に埋まっているとみなし、MissingSlotsには含めない。
func CheckWeekFilled(quota DayQuota, posts []*model.PostTheme, from time.Time) WeekFill {
	start := StartOfDay(from)
	occupancy := ListOccupancy(posts, start, start.AddDate(0, 0, WeekDays-1))

	var missing []MissingSlot
	for i := 0; i < WeekDays; i++ {
		day := start.AddDate(0, 0, i)
		maxForDay := quota[day.Weekday()]
		used := occupancy[DateKey(day)]
		if used < maxForDay {
			missing = append(missing, MissingSlot{Date: day, Count: maxForDay - used})
		}
	}

	return WeekFill{
		IsFilled:     len(missing) == 0,
		MissingSlots: missing,
	}
}

// AvailableSlots はfromの日から7日間の空き枠を、残り枠1つにつき1要素として
// 日付の昇順で返す。
func AvailableSlots(quota DayQuota, posts []*model.PostTheme, from time.Time) []time.Time {
	fill := CheckWeekFilled(quota, posts, from)

	var slots []time.Time
	for _, m := range fill.MissingSlots {
		for i := 0; i < m.Count; i++ {
			slots = append(slots, m.Date)
		}
	}
	return slots
}
