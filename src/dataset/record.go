package dataset

import (
	"sort"
	"strconv"
)

// Period 时间段标签，持久化时保留韩文原值
type Period string

const (
	PeriodLateNight      Period = "심야" // [0,1)
	PeriodEarlyMorning   Period = "새벽" // [5,7)
	PeriodMorningCommute Period = "출근" // [7,9)
	PeriodMorning        Period = "오전" // [9,12)
	PeriodAfternoon      Period = "오후" // [12,18)
	PeriodEveningCommute Period = "퇴근" // [18,20)
	PeriodEvening        Period = "저녁" // [20,24)
	PeriodOther          Period = "기타" // 其余小时，包括 [1,5)
)

// PeriodOrder 时间段展示顺序，不包含 PeriodOther
var PeriodOrder = []Period{
	PeriodEarlyMorning,
	PeriodMorningCommute,
	PeriodMorning,
	PeriodAfternoon,
	PeriodEveningCommute,
	PeriodEvening,
	PeriodLateNight,
}

// Record 长表中的一行：一个站点方向在某个时间槽的拥挤度
type Record struct {
	Weekday     string   `parquet:"weekday" json:"weekday"`
	Line        string   `parquet:"line" json:"line"`
	StationID   string   `parquet:"station_id" json:"station_id"`
	StationName string   `parquet:"station_name" json:"station_name"`
	Direction   string   `parquet:"direction" json:"direction"`
	TimeSlot    string   `parquet:"time_slot" json:"time_slot"`
	TimeOrder   int      `parquet:"time_order" json:"time_order"`
	Congestion  *float64 `parquet:"congestion,optional" json:"congestion"`
	Hour        int      `parquet:"hour" json:"hour"`
	Period      Period   `parquet:"period" json:"period"`
	IsMissing   bool     `parquet:"is_missing" json:"is_missing"`
}

// Value 返回拥挤度；缺失(无法解析)时 ok 为 false
func (r Record) Value() (v float64, ok bool) {
	if r.Congestion == nil {
		return 0, false
	}
	return *r.Congestion, true
}

// clone 连同拥挤度指针一起复制
func (r Record) clone() Record {
	if r.Congestion != nil {
		v := *r.Congestion
		r.Congestion = &v
	}
	return r
}

// SortRecords 按 (line, station_id, weekday, direction, time_order) 稳定排序
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.StationID != b.StationID {
			return lessStationID(a.StationID, b.StationID)
		}
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.TimeOrder < b.TimeOrder
	})
}

// lessStationID 数字站号按数值比较，数字排在非数字之前
func lessStationID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
