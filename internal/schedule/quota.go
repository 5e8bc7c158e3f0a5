package schedule

import (
	"strings"
	"time"

	"github.com/hitoshi/contentplanner/internal/model"
)

// DayQuota は曜日ごとの1日あたり最大投稿数を表す。
// キーが存在しない曜日の枠は0として扱う。
type DayQuota map[time.Weekday]int

// Total は1週間（7連続日）あたりの投稿枠の合計を返す。
func (q DayQuota) Total() int {
	total := 0
	for _, c := range q {
		total += c
	}
	return total
}

// weekdayNames は小文字の曜日名から曜日への対応表。
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sun":       time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
}

// ParseWeekday は曜日名を大文字小文字を区別せずに解析する。
// 3文字の略称（mon, tue...）も受け付ける。
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// WeekdayName は曜日の小文字の名前を返す（例: "monday"）。
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// DefaultPostingDays は設定が存在しない場合の既定の投稿曜日（月・水・金に各1件）を返す。
func DefaultPostingDays() []model.PostingDay {
	return []model.PostingDay{
		{Day: "monday", Count: 1},
		{Day: "wednesday", Count: 1},
		{Day: "friday", Count: 1},
	}
}

// BuildDayCountMap は投稿曜日の一覧を曜日ごとの投稿枠に変換する。
// 同じ曜日のエントリは合算する。不明な曜日名や負の件数のエントリは無視する。
// 有効なエントリが1件もない場合は既定の月・水・金（各1件）を返す。
func BuildDayCountMap(days []model.PostingDay) DayQuota {
	quota := make(DayQuota)
	valid := 0
	for _, d := range days {
		wd, ok := ParseWeekday(d.Day)
		if !ok || d.Count < 0 {
			continue
		}
		quota[wd] += d.Count
		valid++
	}
	if valid == 0 {
		return BuildDayCountMap(DefaultPostingDays())
	}
	return quota
}

// Frequency は投稿曜日一覧の件数合計（週あたりの投稿頻度）を返す。
// BuildDayCountMapと同じ規則で無効なエントリを除外する。
func Frequency(days []model.PostingDay) int {
	total := 0
	for _, d := range days {
		if _, ok := ParseWeekday(d.Day); ok && d.Count > 0 {
			total += d.Count
		}
	}
	return total
}

// NormalizePostingDays は同じ曜日のエントリを合算し、月曜始まりの曜日順に並べた一覧を返す。
// 件数0の曜日は含めない。
func NormalizePostingDays(days []model.PostingDay) []model.PostingDay {
	counts := make(map[time.Weekday]int)
	for _, d := range days {
		if wd, ok := ParseWeekday(d.Day); ok && d.Count > 0 {
			counts[wd] += d.Count
		}
	}

	result := make([]model.PostingDay, 0, len(counts))
	for _, wd := range mondayFirst {
		if c := counts[wd]; c > 0 {
			result = append(result, model.PostingDay{Day: WeekdayName(wd), Count: c})
		}
	}
	return result
}

// mondayFirst は月曜始まりの曜日順。
var mondayFirst = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// ExpandPostingDays は投稿枠を月曜始まりの7曜日すべてを含む一覧に変換する。
// 枠が0の曜日も件数0のエントリとして含める。
func ExpandPostingDays(quota DayQuota) []model.PostingDay {
	result := make([]model.PostingDay, 0, len(mondayFirst))
	for _, wd := range mondayFirst {
		result = append(result, model.PostingDay{Day: WeekdayName(wd), Count: quota[wd]})
	}
	return result
}

// frequencyPreference は週あたりの投稿頻度を曜日に割り当てる優先順。
var frequencyPreference = []time.Weekday{
	time.Monday, time.Wednesday, time.Friday,
	time.Tuesday, time.Thursday, time.Saturday, time.Sunday,
}

// DistributeFrequency は週あたりn件の投稿を優先順（月・水・金・火・木・土・日）に
// 1件ずつ巡回して割り当てた投稿枠を返す。nが0以下の場合はすべて0となる。
func DistributeFrequency(n int) DayQuota {
	quota := make(DayQuota, len(frequencyPreference))
	for _, wd := range frequencyPreference {
		quota[wd] = 0
	}
	for i := 0; i < n; i++ {
		quota[frequencyPreference[i%len(frequencyPreference)]]++
	}
	return quota
}
