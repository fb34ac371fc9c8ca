package query

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"SubwayCongestion/src/dataset"
)

func val(v float64) *float64 { return &v }

func rec(weekday, line, station, direction, slot string, order int, v *float64) dataset.Record {
	hour := 0
	if len(slot) >= 2 {
		hour = int(slot[0]-'0')*10 + int(slot[1]-'0')
	}
	periods := map[int]dataset.Period{5: dataset.PeriodEarlyMorning, 7: dataset.PeriodMorningCommute, 8: dataset.PeriodMorningCommute, 18: dataset.PeriodEveningCommute, 0: dataset.PeriodLateNight}
	p, ok := periods[hour]
	if !ok {
		p = dataset.PeriodOther
	}
	return dataset.Record{
		Weekday: weekday, Line: line, StationID: station, StationName: station, Direction: direction,
		TimeSlot: slot, TimeOrder: order, Congestion: v, Hour: hour, Period: p,
		IsMissing: v == nil || *v == 0,
	}
}

// fixture: 2 lines × 2 stations × 2 directions × 2 weekdays × 3 slots
func fixture() *dataset.Dataset {
	var rs []dataset.Record
	slots := []string{"05:30", "07:30", "18:00"}
	value := 1.0
	for _, wd := range []string{"평일", "토요일"} {
		for _, ln := range []string{"1호선", "2호선"} {
			for _, st := range []string{"A", "B"} {
				for _, dir := range []string{"상선", "하선"} {
					for o, s := range slots {
						rs = append(rs, rec(wd, ln, st, dir, s, o, val(value)))
						value++
					}
				}
			}
		}
	}
	return dataset.New(rs)
}

func rowsOf(v View) []int { return v.Rows() }

func TestFilterEmptyListEqualsOmitted(t *testing.T) {
	ds := fixture()
	omitted := Filter(ds, Criteria{Weekday: "평일"})
	empty := Filter(ds, Criteria{Weekday: "평일", Lines: []string{}, Directions: []string{}, Stations: []string{}})

	assert.Equal(t, 24, omitted.Len())
	assert.Equal(t, rowsOf(omitted), rowsOf(empty))
}

func TestFilterSelectNonePolicy(t *testing.T) {
	ds := fixture()
	assert.Equal(t, 0, filterWithPolicy(ds, Criteria{Lines: []string{}}, SelectNone).Len())
	assert.Equal(t, ds.Len(), filterWithPolicy(ds, Criteria{Lines: nil}, SelectNone).Len(), "nil still means omitted")
}

func TestFilterStations(t *testing.T) {
	v := Filter(fixture(), Criteria{Stations: []string{"A"}})
	require.Equal(t, 24, v.Len())
	for _, r := range v.Records() {
		assert.Equal(t, "A", r.StationName)
	}
}

func TestFilterComposesAndKeepsOrder(t *testing.T) {
	ds := fixture()
	v := Filter(ds, Criteria{
		Weekday:    AllWeekdays,
		Lines:      []string{"2호선"},
		Directions: []string{"하선"},
		TimeRange:  &OrderRange{Lo: 1, Hi: 2},
	})
	require.Equal(t, 2*2*2, v.Len())

	rows := v.Rows()
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1], rows[i], "original row order is preserved")
	}
	for _, r := range v.Records() {
		assert.Equal(t, "2호선", r.Line)
		assert.Equal(t, "하선", r.Direction)
		assert.GreaterOrEqual(t, r.TimeOrder, 1)
	}

	none := Filter(ds, Criteria{Weekday: "일요일"})
	assert.Equal(t, 0, none.Len())
	assert.Equal(t, 0, Filter(dataset.New(nil), Criteria{Weekday: "평일"}).Len())
}

func groupsView(values ...*float64) View {
	var rs []dataset.Record
	for i, v := range values {
		rs = append(rs, rec("평일", "2호선", string(rune('A'+i)), "상선", "07:30", 0, v))
	}
	return All(dataset.New(rs))
}

func TestTopN(t *testing.T) {
	v := groupsView(val(10), val(20), val(30), val(40), val(50))

	top := TopN(v, 3, AggregateMax, nil)
	require.Len(t, top, 3)
	assert.Equal(t, []float64{50, 40, 30}, []float64{top[0].Value, top[1].Value, top[2].Value})
	assert.Equal(t, "E", top[0].StationName)

	assert.Len(t, TopN(v, 10, AggregateMax, nil), 5, "n larger than group count returns all groups")
	assert.Empty(t, TopN(v, 0, AggregateMax, nil))
}

func TestTopNAggregatesAndTimeRange(t *testing.T) {
	ds := dataset.New([]dataset.Record{
		rec("평일", "2호선", "A", "상선", "05:30", 0, val(10)),
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(30)),
		rec("평일", "2호선", "B", "상선", "05:30", 0, val(25)),
		rec("평일", "2호선", "B", "상선", "07:30", 1, val(0)),
		rec("평일", "2호선", "C", "상선", "05:30", 0, val(25)),
	})
	v := All(ds)

	mean := TopN(v, 3, AggregateMean, nil)
	assert.Equal(t, "B", mean[0].StationName, "ties keep first-seen order")
	assert.Equal(t, "C", mean[1].StationName)
	assert.Equal(t, 20.0, mean[2].Value)

	sum := TopN(v, 1, AggregateSum, nil)
	assert.Equal(t, 40.0, sum[0].Value)

	early := TopN(v, 3, AggregateMax, &OrderRange{Lo: 0, Hi: 0})
	assert.Equal(t, []string{"B", "C", "A"}, []string{early[0].StationName, early[1].StationName, early[2].StationName})
}

func TestParseAggregate(t *testing.T) {
	for in, want := range map[string]Aggregate{"": AggregateMax, "max": AggregateMax, "MEAN": AggregateMean, " sum ": AggregateSum} {
		got, err := ParseAggregate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAggregate("median")
	assert.True(t, errors.Is(err, ErrUnknownAggregate))
}

func TestMaxCongestionInfo(t *testing.T) {
	info := MaxCongestionInfo(groupsView(val(10), val(50), val(50), nil))
	assert.Equal(t, 50.0, info.MaxValue)
	assert.Equal(t, "B", info.StationName, "first maximal row wins")

	sentinel := MaxInfo{MaxValue: 0, TimeSlot: "-", StationName: "-", Line: "-", Direction: "-", Weekday: "-"}
	assert.Equal(t, sentinel, MaxCongestionInfo(groupsView(nil, val(0))))
	assert.Equal(t, sentinel, MaxCongestionInfo(View{}))
}

func TestSummaryStats(t *testing.T) {
	v := groupsView(val(1), val(2), val(3), val(4), val(5), val(6), val(7), nil, val(0), nil)
	s := SummaryStats(v)

	assert.Equal(t, 30.0, s.MissingPct)
	assert.Equal(t, 7, s.Count)
	assert.Equal(t, 4.0, s.Mean)
	assert.Equal(t, 4.0, s.Median)
	assert.InDelta(t, math.Sqrt(28.0/6.0), s.Std, 1e-9)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 7.0, s.Max)

	assert.Equal(t, Stats{MissingPct: 100}, SummaryStats(groupsView(nil, val(0))))
	assert.Equal(t, Stats{MissingPct: 100}, SummaryStats(View{}))

	single := SummaryStats(groupsView(val(42)))
	assert.Equal(t, 0.0, single.Std)
}

func TestPeriodAverage(t *testing.T) {
	ds := dataset.New([]dataset.Record{
		rec("평일", "2호선", "A", "상선", "18:00", 2, val(40)),
		rec("평일", "2호선", "A", "상선", "02:00", 9, val(99)),
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(20)),
		rec("평일", "2호선", "A", "상선", "00:30", 3, val(5)),
		rec("평일", "2호선", "A", "상선", "05:30", 0, val(10)),
		rec("평일", "2호선", "A", "상선", "08:00", 1, val(30)),
		rec("평일", "2호선", "A", "상선", "05:00", 0, val(0)),
	})

	got := PeriodAverage(All(ds))
	var periods []dataset.Period
	for _, p := range got {
		periods = append(periods, p.Period)
	}
	assert.Equal(t, []dataset.Period{dataset.PeriodEarlyMorning, dataset.PeriodMorningCommute, dataset.PeriodEveningCommute, dataset.PeriodLateNight}, periods)
	assert.Equal(t, 10.0, got[0].AvgCongestion)
	assert.Equal(t, 25.0, got[1].AvgCongestion)
	assert.Empty(t, PeriodAverage(View{}))
}

func TestPeakHours(t *testing.T) {
	ds := dataset.New([]dataset.Record{
		rec("평일", "2호선", "A", "상선", "18:00", 2, val(90)),
		rec("평일", "2호선", "B", "상선", "18:00", 2, val(70)),
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(95)),
		rec("평일", "2호선", "B", "상선", "07:30", 1, val(85)),
		rec("평일", "2호선", "A", "상선", "05:30", 0, val(10)),
		rec("평일", "2호선", "B", "상선", "05:30", 0, val(20)),
	})
	v := All(ds)

	threshold := 80.0
	peaks := PeakHours(v, &threshold)
	require.Len(t, peaks, 2)
	assert.Equal(t, "07:30", peaks[0].TimeSlot, "ordered by time_order")
	assert.Equal(t, 90.0, peaks[0].AvgCongestion)
	assert.Equal(t, 95.0, peaks[0].MaxCongestion)
	assert.Equal(t, "18:00", peaks[1].TimeSlot)

	// mean 61.67 + sample std 37.24 = 98.9, nothing qualifies
	assert.Empty(t, PeakHours(v, nil))

	low := 50.0
	assert.Len(t, PeakHours(v, &low), 2)
	assert.Empty(t, PeakHours(View{}, nil))
}

func TestHeatmap(t *testing.T) {
	ds := dataset.New([]dataset.Record{
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(10)),
		rec("평일", "2호선", "A", "하선", "07:30", 1, val(30)),
		rec("평일", "2호선", "A", "상선", "05:30", 0, val(40)),
		rec("평일", "1호선", "B", "상선", "07:30", 1, val(90)),
		rec("평일", "1호선", "C", "상선", "05:30", 0, val(5)),
	})

	h := Heatmap(All(ds), 2)
	assert.Equal(t, []string{"B (1호선)", "A (2호선)"}, h.Stations)
	assert.Equal(t, []string{"05:30", "07:30"}, h.TimeSlots)
	assert.Nil(t, h.Values[0][0])
	assert.Equal(t, 90.0, *h.Values[0][1])
	assert.Equal(t, 40.0, *h.Values[1][0])
	assert.Equal(t, 20.0, *h.Values[1][1])

	empty := Heatmap(View{}, DefaultHeatmapStations)
	assert.Empty(t, empty.Stations)
}

func TestTrend(t *testing.T) {
	ds := dataset.New([]dataset.Record{
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(10)),
		rec("토요일", "2호선", "A", "상선", "07:30", 1, val(30)),
		rec("평일", "2호선", "A", "상선", "05:30", 0, val(40)),
		rec("평일", "2호선", "A", "하선", "05:30", 0, val(1)),
		rec("평일", "1호선", "B", "상선", "07:30", 1, val(90)),
	})

	series := Trend(All(ds), []string{"A"})
	require.Len(t, series, 2)
	assert.Equal(t, "A (2호선, 상선)", series[0].Label)
	require.Len(t, series[0].Points, 2)
	assert.Equal(t, "05:30", series[0].Points[0].TimeSlot)
	assert.Equal(t, 20.0, series[0].Points[1].AvgCongestion)

	auto := Trend(All(ds), nil)
	assert.Len(t, auto, 3, "no selection falls back to the busiest stations")
}

func TestDistribution(t *testing.T) {
	var rs []dataset.Record
	for i, v := range []float64{5, 1, 4, 2, 3} {
		rs = append(rs, rec("평일", "2호선", string(rune('A'+i)), "상선", "07:30", 1, val(v)))
	}
	rs = append(rs, rec("평일", "2호선", "A", "상선", "05:30", 0, val(8)))

	d := Distribution(All(dataset.New(rs)))
	require.Len(t, d, 2)
	assert.Equal(t, "05:30", d[0].TimeSlot)
	assert.Equal(t, 1, d[0].Count)
	assert.Equal(t, SlotDistribution{TimeSlot: "07:30", TimeOrder: 1, Count: 5, Min: 1, Q1: 2, Median: 3, Q3: 4, Max: 5}, d[1])
}

func TestRanking(t *testing.T) {
	r := Ranking(groupsView(val(10), val(20), val(30)), 2, AggregateMax)
	require.Len(t, r, 2)
	assert.Equal(t, 1, r[0].Rank)
	assert.Equal(t, "C (2호선)", r[0].Label)
	assert.Equal(t, 20.0, r[1].Value)
}

func TestDownloadView(t *testing.T) {
	ds := dataset.New([]dataset.Record{
		rec("평일", "2호선", "B", "상선", "07:30", 1, val(10)),
		rec("평일", "1호선", "Z", "상선", "07:30", 1, nil),
		rec("평일", "2호선", "A", "하선", "07:30", 1, val(12)),
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(11)),
		rec("평일", "2호선", "A", "상선", "05:30", 0, val(0)),
	})

	rows := DownloadView(All(ds))
	var keys []string
	for _, r := range rows {
		keys = append(keys, r.Line+"/"+r.StationName+"/"+r.Direction+"/"+r.TimeSlot)
	}
	assert.Equal(t, []string{"1호선/Z/상선/07:30", "2호선/A/상선/05:30", "2호선/A/상선/07:30", "2호선/A/하선/07:30", "2호선/B/상선/07:30"}, keys)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"weekday", "line", "station_name", "direction", "time_slot", "congestion", "hour", "period"}, records[0])
	assert.Equal(t, "", records[1][5], "absent congestion exports as an empty cell")
	assert.Equal(t, "0", records[2][5])
	assert.Len(t, records, 6)

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "\ufeffweekday,line,station_name,direction,time_slot,congestion,hour,period\n", buf.String())
}

func TestDownloadViewDoesNotShareValues(t *testing.T) {
	ds := dataset.New([]dataset.Record{rec("평일", "2호선", "A", "상선", "07:30", 1, val(10))})

	rows := DownloadView(All(ds))
	require.Len(t, rows, 1)
	*rows[0].Congestion = 999

	v, ok := ds.At(0).Value()
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestWriteXLSX(t *testing.T) {
	rows := DownloadView(All(dataset.New([]dataset.Record{
		rec("평일", "2호선", "A", "상선", "07:30", 1, val(11.5)),
		rec("평일", "2호선", "A", "상선", "05:30", 0, nil),
	})))

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows("congestion")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "congestion", got[0][5])
	assert.Equal(t, "05:30", got[1][4])
	assert.Len(t, got[1], 8, "trailing period cell is still written")
	assert.Equal(t, "", got[1][5])
	assert.Equal(t, "11.5", got[2][5])
}
