package schedule

import (
	"time"

	"github.com/hitoshi/contentplanner/internal/model"
)

// dateLayout は暦日キーのフォーマット。
const dateLayout = "2006-01-02"

// StartOfDay はtのタイムゾーンにおける同じ日の0時0分を返す。
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey はtのタイムゾーンにおける暦日をyyyy-MM-dd形式で返す。
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate はyyyy-MM-dd形式の日付をloc上の0時0分として解析する。
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, loc)
}

// IsActive は投稿が枠を消費するステータスかどうかを返す。
func IsActive(p *model.PostTheme) bool {
	return p != nil && p.ScheduledDate != nil && p.Status.Occupies()
}

// ListOccupancy は期間 [windowStart, windowEnd]（両端を含む暦日）に公開日を持ち、
// 枠を消費するステータス（pending・declined以外）の投稿数を暦日ごとに返す。
// 日付の判定はwindowStartのタイムゾーンで行う。投稿のない日はキーが存在しない。
func ListOccupancy(posts []*model.PostTheme, windowStart, windowEnd time.Time) map[string]int {
	loc := windowStart.Location()
	first := StartOfDay(windowStart)
	last := StartOfDay(windowEnd.In(loc))

	occupancy := make(map[string]int)
	for _, p := range posts {
		if !IsActive(p) {
			continue
		}
		day := StartOfDay(p.ScheduledDate.In(loc))
		if day.Before(first) || day.After(last) {
			continue
		}
		occupancy[DateKey(day)]++
	}
	return occupancy
}

// ActiveCount はfromの日から連続するdays日間に公開日を持つ、枠を消費する投稿の数を返す。
func ActiveCount(posts []*model.PostTheme, from time.Time, days int) int {
	if days <= 0 {
		return 0
	}
	start := StartOfDay(from)
	total := 0
	for _, c := range ListOccupancy(posts, start, start.AddDate(0, 0, days-1)) {
		total += c
	}
	return total
}

// latestActiveDate は枠を消費する投稿の中で最も遅い公開日を返す。
func latestActiveDate(posts []*model.PostTheme) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, p := range posts {
		if !IsActive(p) {
			continue
		}
		if !found || p.ScheduledDate.After(latest) {
			latest = *p.ScheduledDate
			found = true
		}
	}
	return latest, found
}
