package query

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"SubwayCongestion/src/dataset"
)

// ErrUnknownAggregate 无法识别的聚合方式
var ErrUnknownAggregate = errors.New("unknown aggregate")

// Aggregate Top-N 的聚合方式
type Aggregate int

const (
	AggregateMax Aggregate = iota
	AggregateMean
	AggregateSum
)

// DefaultAggregate 未指定时使用的聚合方式
const DefaultAggregate = AggregateMax

// ParseAggregate 空串返回 DefaultAggregate，未知值返回 ErrUnknownAggregate
func ParseAggregate(s string) (Aggregate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultAggregate, nil
	case "max":
		return AggregateMax, nil
	case "mean":
		return AggregateMean, nil
	case "sum":
		return AggregateSum, nil
	default:
		return DefaultAggregate, fmt.Errorf("%w: %q", ErrUnknownAggregate, s)
	}
}

func (a Aggregate) String() string {
	switch a {
	case AggregateMax:
		return "max"
	case AggregateMean:
		return "mean"
	case AggregateSum:
		return "sum"
	default:
		return fmt.Sprintf("Aggregate(%d)", int(a))
	}
}

func (a Aggregate) reduce(values []float64) float64 {
	switch a {
	case AggregateMax:
		return floats.Max(values)
	case AggregateMean:
		return stat.Mean(values, nil)
	case AggregateSum:
		return floats.Sum(values)
	default:
		panic(fmt.Sprintf("query: unhandled %v", a))
	}
}

// MaxInfo 最大拥挤度所在的记录
type MaxInfo struct {
	MaxValue    float64 `json:"max_value"`
	TimeSlot    string  `json:"time_slot"`
	StationName string  `json:"station_name"`
	Line        string  `json:"line"`
	Direction   string  `json:"direction"`
	Weekday     string  `json:"weekday"`
}

const placeholder = "-"

// MaxCongestionInfo 非缺失行中的最大值，并列时取最先出现的行；没有有效行时返回占位结果
func MaxCongestionInfo(v View) MaxInfo {
	info := MaxInfo{TimeSlot: placeholder, StationName: placeholder, Line: placeholder, Direction: placeholder, Weekday: placeholder}
	found := false
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		if r.IsMissing {
			continue
		}
		val, ok := r.Value()
		if !ok {
			continue
		}
		if !found || val > info.MaxValue {
			found = true
			info = MaxInfo{
				MaxValue:    val,
				TimeSlot:    r.TimeSlot,
				StationName: r.StationName,
				Line:        r.Line,
				Direction:   r.Direction,
				Weekday:     r.Weekday,
			}
		}
	}
	return info
}

// StationValue 按 (station_name, line) 聚合后的值
type StationValue struct {
	StationName string  `json:"station_name"`
	Line        string  `json:"line"`
	Value       float64 `json:"congestion_value"`
}

// Label "역명 (호선)"
func (s StationValue) Label() string {
	return fmt.Sprintf("%s (%s)", s.StationName, s.Line)
}

type stationKey struct{ station, line string }

// TopN 非缺失行按 (station_name, line) 聚合后取前 n；n 超过组数时返回全部
// 参数:
//
//	within: 可选的 time_order 闭区间，为 nil 时不限
func TopN(v View, n int, agg Aggregate, within *OrderRange) []StationValue {
	if n <= 0 {
		return []StationValue{}
	}

	var order []stationKey
	groups := make(map[stationKey][]float64)
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		if r.IsMissing {
			continue
		}
		if within != nil && (r.TimeOrder < within.Lo || r.TimeOrder > within.Hi) {
			continue
		}
		val, ok := r.Value()
		if !ok {
			continue
		}
		k := stationKey{r.StationName, r.Line}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], val)
	}

	out := make([]StationValue, len(order))
	for i, k := range order {
		out[i] = StationValue{StationName: k.station, Line: k.line, Value: agg.reduce(groups[k])}
	}
	// 并列时保持首次出现的顺序
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })

	if n < len(out) {
		out = out[:n]
	}
	return out
}

// PeriodValue 时间段平均拥挤度
type PeriodValue struct {
	Period        dataset.Period `json:"period"`
	AvgCongestion float64        `json:"avg_congestion"`
}

// PeriodAverage 各时间段均值，按 dataset.PeriodOrder 排列；기타 不出现
func PeriodAverage(v View) []PeriodValue {
	sums := make(map[dataset.Period]float64)
	counts := make(map[dataset.Period]int)
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		if r.IsMissing {
			continue
		}
		val, ok := r.Value()
		if !ok {
			continue
		}
		sums[r.Period] += val
		counts[r.Period]++
	}

	out := []PeriodValue{}
	for _, p := range dataset.PeriodOrder {
		if counts[p] == 0 {
			continue
		}
		out = append(out, PeriodValue{Period: p, AvgCongestion: sums[p] / float64(counts[p])})
	}
	return out
}

// Stats 描述统计
type Stats struct {
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	MissingPct float64 `json:"missing_pct"`
}

// SummaryStats 非缺失行的描述统计；missing_pct 以整个视图的行数为分母
func SummaryStats(v View) Stats {
	valid := validValues(v)
	if len(valid) == 0 {
		return Stats{MissingPct: 100.0}
	}

	s := series.New(valid, series.Float, "congestion")
	std := s.StdDev()
	if math.IsNaN(std) {
		std = 0
	}
	return Stats{
		Count:      len(valid),
		Mean:       s.Mean(),
		Median:     s.Median(),
		Std:        std,
		Min:        s.Min(),
		Max:        s.Max(),
		MissingPct: float64(v.Len()-len(valid)) * 100 / float64(v.Len()),
	}
}

// SlotPeak 时间槽的均值与最大值
type SlotPeak struct {
	TimeSlot      string  `json:"time_slot"`
	TimeOrder     int     `json:"time_order"`
	AvgCongestion float64 `json:"avg_congestion"`
	MaxCongestion float64 `json:"max_congestion"`
}

// PeakHours 时间槽均值 >= threshold 的时间槽，按 time_order 升序
// threshold 为 nil 时取有效值的 mean + std(样本标准差)
func PeakHours(v View, threshold *float64) []SlotPeak {
	slots := slotValues(v)
	if len(slots) == 0 {
		return []SlotPeak{}
	}

	limit := 0.0
	if threshold != nil {
		limit = *threshold
	} else {
		mean, std := stat.MeanStdDev(validValues(v), nil)
		limit = mean + std
	}

	out := []SlotPeak{}
	for _, sv := range slots {
		avg := stat.Mean(sv.values, nil)
		if avg >= limit {
			out = append(out, SlotPeak{
				TimeSlot:      sv.slot,
				TimeOrder:     sv.order,
				AvgCongestion: avg,
				MaxCongestion: floats.Max(sv.values),
			})
		}
	}
	return out
}

// validValues 非缺失行的拥挤度
func validValues(v View) []float64 {
	out := make([]float64, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		if r.IsMissing {
			continue
		}
		if val, ok := r.Value(); ok {
			out = append(out, val)
		}
	}
	return out
}

type slotGroup struct {
	slot   string
	order  int
	values []float64
}

// slotValues 按时间槽分组非缺失值，结果按 time_order 排列
func slotValues(v View) []*slotGroup {
	index := make(map[string]*slotGroup)
	var groups []*slotGroup
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		if r.IsMissing {
			continue
		}
		val, ok := r.Value()
		if !ok {
			continue
		}
		g, seen := index[r.TimeSlot]
		if !seen {
			g = &slotGroup{slot: r.TimeSlot, order: r.TimeOrder}
			index[r.TimeSlot] = g
			groups = append(groups, g)
		}
		g.values = append(g.values, val)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].order < groups[j].order })
	return groups
}
