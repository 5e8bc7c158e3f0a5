package schedule

import (
	"time"

	"github.com/hitoshi/contentplanner/internal/model"
)

// MaxSearchDays は次の空き枠を探索する最大日数（4週間）。
// すべての曜日の枠が0の設定でも探索が必ず終了する。
const MaxSearchDays = 28

// FindNextSlot は投稿枠に空きがある最も早い暦日を返す。
//
// 探索の起点は、枠を消費する投稿の最も遅い公開日がnowより後であればその日、
// そうでなければnowの日とする。起点から1日ずつ最大MaxSearchDays日進め、
// 枠が1以上かつ使用数が枠未満の最初の日を返す。
//
// 空き枠が見つからない場合はnowの翌日0時とfalseを返す。この値は本当の空き枠では
// ないため、呼び出し元は縮退結果として扱うこと。
func FindNextSlot(quota DayQuota, posts []*model.PostTheme, now time.Time) (time.Time, bool) {
	loc := now.Location()

	baseline := now
	if latest, ok := latestActiveDate(posts); ok && latest.In(loc).After(now) {
		baseline = latest.In(loc)
	}

	first := StartOfDay(baseline)
	occupancy := ListOccupancy(posts, first, first.AddDate(0, 0, MaxSearchDays-1))

	for i := 0; i < MaxSearchDays; i++ {
		candidate := first.AddDate(0, 0, i)
		maxForDay := quota[candidate.Weekday()]
		if maxForDay > 0 && occupancy[DateKey(candidate)] < maxForDay {
			return candidate, true
		}
	}

	return StartOfDay(now).AddDate(0, 0, 1), false
}
