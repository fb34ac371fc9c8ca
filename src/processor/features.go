package processor

import (
	"math"
	"strconv"
	"strings"

	"SubwayCongestion/src/dataset"
)

// ParseCongestion 去掉首尾空白后解析数值，失败返回 nil
func ParseCongestion(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// PeriodOf 小时 -> 时间段；[1,5) 落在 기타
func PeriodOf(hour int) dataset.Period {
	switch {
	case hour >= 0 && hour < 1:
		return dataset.PeriodLateNight
	case hour >= 5 && hour < 7:
		return dataset.PeriodEarlyMorning
	case hour >= 7 && hour < 9:
		return dataset.PeriodMorningCommute
	case hour >= 9 && hour < 12:
		return dataset.PeriodMorning
	case hour >= 12 && hour < 18:
		return dataset.PeriodAfternoon
	case hour >= 18 && hour < 20:
		return dataset.PeriodEveningCommute
	case hour >= 20 && hour < 24:
		return dataset.PeriodEvening
	default:
		return dataset.PeriodOther
	}
}

// hourOf 取 "HH:MM" 冒号前的整数
func hourOf(slot string) int {
	head, _, _ := strings.Cut(slot, ":")
	h, err := strconv.Atoi(head)
	if err != nil {
		return -1
	}
	return h
}

// IsMissing 缺失或等于 0 都视为缺失
func IsMissing(v *float64) bool {
	return v == nil || *v == 0.0
}

// DeriveFeatures 解析拥挤度并派生 hour / period / is_missing
// 返回值:
//
//	[]dataset.Record: 与输入一一对应
//	int: 无法解析的单元个数
func DeriveFeatures(cells []LongCell) ([]dataset.Record, int) {
	records := make([]dataset.Record, len(cells))
	unparsable := 0

	for i, c := range cells {
		v := ParseCongestion(c.Raw)
		if v == nil {
			unparsable++
		}
		hour := hourOf(c.TimeSlot)
		records[i] = dataset.Record{
			Weekday:     c.Weekday,
			Line:        c.Line,
			StationID:   c.StationID,
			StationName: c.StationName,
			Direction:   c.Direction,
			TimeSlot:    c.TimeSlot,
			TimeOrder:   c.TimeOrder,
			Congestion:  v,
			Hour:        hour,
			Period:      PeriodOf(hour),
			IsMissing:   IsMissing(v),
		}
	}
	return records, unparsable
}
