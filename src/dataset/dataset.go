package dataset

import (
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// RowColumn 帧中记录原始行号的列
const RowColumn = "row"

// Dataset 加载后只读的长表：类型化记录 + 用于谓词过滤的 Gota DataFrame
type Dataset struct {
	records []Record
	frame   dataframe.DataFrame
}

// New 复制 records 并构建只读数据集
func New(records []Record) *Dataset {
	rs := make([]Record, len(records))
	for i, r := range records {
		rs[i] = r.clone()
	}
	return &Dataset{records: rs, frame: buildFrame(rs)}
}

// Len 行数
func (d *Dataset) Len() int {
	return len(d.records)
}

// At 第 i 行的副本，修改它不会影响数据集
func (d *Dataset) At(i int) Record {
	return d.records[i].clone()
}

// Records 返回全部记录的副本
func (d *Dataset) Records() []Record {
	rs := make([]Record, len(d.records))
	for i, r := range d.records {
		rs[i] = r.clone()
	}
	return rs
}

// Frame 返回列式视图，row 列对应 At 的下标
func (d *Dataset) Frame() dataframe.DataFrame {
	return d.frame
}

func buildFrame(records []Record) dataframe.DataFrame {
	n := len(records)
	var (
		weekday     = make([]string, n)
		line        = make([]string, n)
		stationID   = make([]string, n)
		stationName = make([]string, n)
		direction   = make([]string, n)
		timeSlot    = make([]string, n)
		timeOrder   = make([]int, n)
		congestion  = make([]float64, n)
		hour        = make([]int, n)
		period      = make([]string, n)
		isMissing   = make([]bool, n)
		row         = make([]int, n)
	)

	for i, r := range records {
		weekday[i] = r.Weekday
		line[i] = r.Line
		stationID[i] = r.StationID
		stationName[i] = r.StationName
		direction[i] = r.Direction
		timeSlot[i] = r.TimeSlot
		timeOrder[i] = r.TimeOrder
		if v, ok := r.Value(); ok {
			congestion[i] = v
		} else {
			congestion[i] = math.NaN()
		}
		hour[i] = r.Hour
		period[i] = string(r.Period)
		isMissing[i] = r.IsMissing
		row[i] = i
	}

	return dataframe.New(
		series.New(weekday, series.String, "weekday"),
		series.New(line, series.String, "line"),
		series.New(stationID, series.String, "station_id"),
		series.New(stationName, series.String, "station_name"),
		series.New(direction, series.String, "direction"),
		series.New(timeSlot, series.String, "time_slot"),
		series.New(timeOrder, series.Int, "time_order"),
		series.New(congestion, series.Float, "congestion"),
		series.New(hour, series.Int, "hour"),
		series.New(period, series.String, "period"),
		series.New(isMissing, series.Bool, "is_missing"),
		series.New(row, series.Int, RowColumn),
	)
}

// Options 过滤控件的候选值
type Options struct {
	Weekdays   []string `json:"weekdays"`
	Lines      []string `json:"lines"`
	Stations   []string `json:"stations"`
	Directions []string `json:"directions"`
	TimeSlots  []string `json:"time_slots"` // 按 time_order 排列
	MinOrder   int      `json:"min_order"`
	MaxOrder   int      `json:"max_order"`
}

// FilterOptions 汇总各维度的去重取值
func FilterOptions(d *Dataset) Options {
	weekdays := map[string]bool{}
	lines := map[string]bool{}
	stations := map[string]bool{}
	directions := map[string]bool{}
	slots := TimeOrderMapping(d)

	for _, r := range d.records {
		weekdays[r.Weekday] = true
		lines[r.Line] = true
		stations[r.StationName] = true
		directions[r.Direction] = true
	}

	opts := Options{
		Weekdays:   sortedKeys(weekdays),
		Lines:      sortedKeys(lines),
		Stations:   sortedKeys(stations),
		Directions: sortedKeys(directions),
	}

	opts.TimeSlots = make([]string, 0, len(slots))
	for slot := range slots {
		opts.TimeSlots = append(opts.TimeSlots, slot)
	}
	sort.Slice(opts.TimeSlots, func(i, j int) bool {
		return slots[opts.TimeSlots[i]] < slots[opts.TimeSlots[j]]
	})
	if len(opts.TimeSlots) > 0 {
		opts.MinOrder = slots[opts.TimeSlots[0]]
		opts.MaxOrder = slots[opts.TimeSlots[len(opts.TimeSlots)-1]]
	}
	return opts
}

// TimeOrderMapping time_slot -> time_order
func TimeOrderMapping(d *Dataset) map[string]int {
	m := make(map[string]int)
	for _, r := range d.records {
		if _, ok := m[r.TimeSlot]; !ok {
			m[r.TimeSlot] = r.TimeOrder
		}
	}
	return m
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
