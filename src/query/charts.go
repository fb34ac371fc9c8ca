package query

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultHeatmapStations 热力图默认显示的站点数
const DefaultHeatmapStations = 30

// DefaultTrendStations 未指定站点时趋势图显示的站点数
const DefaultTrendStations = 5

// HeatmapTable 站点 × 时间槽的平均拥挤度矩阵
type HeatmapTable struct {
	Stations  []string     `json:"stations"`   // "역명 (호선)"，按行均值降序
	TimeSlots []string     `json:"time_slots"` // 按 time_order
	Values    [][]*float64 `json:"values"`     // 无数据的格子为 nil
}

// Heatmap 取平均拥挤度最高的 maxStations 个站点，构建透视表
func Heatmap(v View, maxStations int) HeatmapTable {
	table := HeatmapTable{Stations: []string{}, TimeSlots: []string{}, Values: [][]*float64{}}
	valid := v.valid()
	if valid.Len() == 0 || maxStations <= 0 {
		return table
	}

	// 1. 按站点均值选出前 maxStations 个
	top := TopN(valid, maxStations, AggregateMean, nil)
	keep := make(map[string]bool, len(top))
	for _, s := range top {
		keep[s.Label()] = true
	}

	// 2. 透视：站点 × 时间槽求均值
	type cell struct {
		sum   float64
		count int
	}
	cells := make(map[string]map[string]*cell)
	slotOrder := make(map[string]int)
	for i := 0; i < valid.Len(); i++ {
		r := valid.At(i)
		label := StationValue{StationName: r.StationName, Line: r.Line}.Label()
		if !keep[label] {
			continue
		}
		val, _ := r.Value()
		if cells[label] == nil {
			cells[label] = make(map[string]*cell)
		}
		c := cells[label][r.TimeSlot]
		if c == nil {
			c = &cell{}
			cells[label][r.TimeSlot] = c
		}
		c.sum += val
		c.count++
		if _, ok := slotOrder[r.TimeSlot]; !ok {
			slotOrder[r.TimeSlot] = r.TimeOrder
		}
	}

	for slot := range slotOrder {
		table.TimeSlots = append(table.TimeSlots, slot)
	}
	sort.Slice(table.TimeSlots, func(i, j int) bool {
		return slotOrder[table.TimeSlots[i]] < slotOrder[table.TimeSlots[j]]
	})

	// 3. 按行均值降序排列
	type row struct {
		label  string
		mean   float64
		values []*float64
	}
	rows := make([]row, 0, len(top))
	for _, s := range top {
		label := s.Label()
		rw := row{label: label, values: make([]*float64, len(table.TimeSlots))}
		sum, n := 0.0, 0
		for j, slot := range table.TimeSlots {
			if c := cells[label][slot]; c != nil {
				m := c.sum / float64(c.count)
				rw.values[j] = &m
				sum += m
				n++
			}
		}
		if n > 0 {
			rw.mean = sum / float64(n)
		}
		rows = append(rows, rw)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].mean > rows[j].mean })

	for _, rw := range rows {
		table.Stations = append(table.Stations, rw.label)
		table.Values = append(table.Values, rw.values)
	}
	return table
}

// TrendPoint 折线图上的一个点
type TrendPoint struct {
	TimeSlot      string  `json:"time_slot"`
	TimeOrder     int     `json:"time_order"`
	AvgCongestion float64 `json:"avg_congestion"`
}

// TrendSeries 一个 (站点, 线路, 方向) 的时间序列
type TrendSeries struct {
	Label       string       `json:"label"` // "역명 (호선, 방향)"
	StationName string       `json:"station_name"`
	Line        string       `json:"line"`
	Direction   string       `json:"direction"`
	Points      []TrendPoint `json:"points"`
}

// Trend 指定站点各方向的时间序列；stations 为空时取均值最高的 DefaultTrendStations 个站
func Trend(v View, stations []string) []TrendSeries {
	valid := v.valid()
	out := []TrendSeries{}
	if valid.Len() == 0 {
		return out
	}

	if len(stations) == 0 {
		stations = topStationNames(valid, DefaultTrendStations)
	}
	selected := make(map[string]bool, len(stations))
	for _, s := range stations {
		selected[s] = true
	}

	type seriesKey struct{ station, line, direction string }
	var order []seriesKey
	groups := make(map[seriesKey]View)
	for i := 0; i < valid.Len(); i++ {
		r := valid.At(i)
		if !selected[r.StationName] {
			continue
		}
		k := seriesKey{r.StationName, r.Line, r.Direction}
		g, seen := groups[k]
		if !seen {
			order = append(order, k)
			g = View{ds: valid.ds}
		}
		g.rows = append(g.rows, valid.rows[i])
		groups[k] = g
	}

	for _, k := range order {
		ts := TrendSeries{
			Label:       fmt.Sprintf("%s (%s, %s)", k.station, k.line, k.direction),
			StationName: k.station,
			Line:        k.line,
			Direction:   k.direction,
		}
		for _, sv := range slotValues(groups[k]) {
			ts.Points = append(ts.Points, TrendPoint{
				TimeSlot:      sv.slot,
				TimeOrder:     sv.order,
				AvgCongestion: stat.Mean(sv.values, nil),
			})
		}
		out = append(out, ts)
	}
	return out
}

// topStationNames 按站名(不分线路)均值取前 n 个
func topStationNames(v View, n int) []string {
	var order []string
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		val, _ := r.Value()
		if counts[r.StationName] == 0 {
			order = append(order, r.StationName)
		}
		sums[r.StationName] += val
		counts[r.StationName]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return sums[order[i]]/float64(counts[order[i]]) > sums[order[j]]/float64(counts[order[j]])
	})
	if n < len(order) {
		order = order[:n]
	}
	return order
}

// SlotDistribution 一个时间槽的箱线图统计
type SlotDistribution struct {
	TimeSlot  string  `json:"time_slot"`
	TimeOrder int     `json:"time_order"`
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Q1        float64 `json:"q1"`
	Median    float64 `json:"median"`
	Q3        float64 `json:"q3"`
	Max       float64 `json:"max"`
}

// Distribution 各时间槽的五数概括，按 time_order 排列
func Distribution(v View) []SlotDistribution {
	out := []SlotDistribution{}
	for _, sv := range slotValues(v) {
		values := append([]float64(nil), sv.values...)
		sort.Float64s(values)
		out = append(out, SlotDistribution{
			TimeSlot:  sv.slot,
			TimeOrder: sv.order,
			Count:     len(values),
			Min:       values[0],
			Q1:        stat.Quantile(0.25, stat.Empirical, values, nil),
			Median:    stat.Quantile(0.5, stat.Empirical, values, nil),
			Q3:        stat.Quantile(0.75, stat.Empirical, values, nil),
			Max:       values[len(values)-1],
		})
	}
	return out
}

// RankingRow 排名条形图的一行
type RankingRow struct {
	Rank  int    `json:"rank"`
	Label string `json:"label"`
	StationValue
}

// Ranking Top-N 加上名次与 "역명 (호선)" 标签
func Ranking(v View, n int, agg Aggregate) []RankingRow {
	top := TopN(v, n, agg, nil)
	out := make([]RankingRow, len(top))
	for i, s := range top {
		out[i] = RankingRow{Rank: i + 1, Label: s.Label(), StationValue: s}
	}
	return out
}
