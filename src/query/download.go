package query

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jszwec/csvutil"

	"SubwayCongestion/src/dataset"
	"SubwayCongestion/src/utils"
)

// DownloadRow 导出用的行，不含 is_missing / station_id
type DownloadRow struct {
	Weekday     string         `csv:"weekday" json:"weekday"`
	Line        string         `csv:"line" json:"line"`
	StationName string         `csv:"station_name" json:"station_name"`
	Direction   string         `csv:"direction" json:"direction"`
	TimeSlot    string         `csv:"time_slot" json:"time_slot"`
	Congestion  *float64       `csv:"congestion" json:"congestion"`
	Hour        int            `csv:"hour" json:"hour"`
	Period      dataset.Period `csv:"period" json:"period"`
}

// DownloadView 投影导出列并按 (line, station_name, weekday, direction, time_slot) 排序
func DownloadView(v View) []DownloadRow {
	rows := make([]DownloadRow, v.Len())
	for i := range rows {
		r := v.At(i)
		rows[i] = DownloadRow{
			Weekday:     r.Weekday,
			Line:        r.Line,
			StationName: r.StationName,
			Direction:   r.Direction,
			TimeSlot:    r.TimeSlot,
			Congestion:  r.Congestion,
			Hour:        r.Hour,
			Period:      r.Period,
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.StationName != b.StationName {
			return a.StationName < b.StationName
		}
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.TimeSlot < b.TimeSlot
	})
	return rows
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV 写出带 BOM 的 UTF-8 CSV，表格软件可直接识别韩文
func WriteCSV(w io.Writer, rows []DownloadRow) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("写入BOM失败: %w", err)
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(DownloadRow{}); err != nil {
			return fmt.Errorf("写入CSV表头失败: %w", err)
		}
	} else if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("写入CSV失败: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

// DownloadFrame 导出行转换为 Gota DataFrame，缺失的拥挤度为 NaN
func DownloadFrame(rows []DownloadRow) dataframe.DataFrame {
	n := len(rows)
	weekday := make([]string, n)
	line := make([]string, n)
	station := make([]string, n)
	direction := make([]string, n)
	slot := make([]string, n)
	congestion := make([]float64, n)
	hour := make([]int, n)
	period := make([]string, n)

	for i, r := range rows {
		weekday[i] = r.Weekday
		line[i] = r.Line
		station[i] = r.StationName
		direction[i] = r.Direction
		slot[i] = r.TimeSlot
		if r.Congestion != nil {
			congestion[i] = *r.Congestion
		} else {
			congestion[i] = math.NaN()
		}
		hour[i] = r.Hour
		period[i] = string(r.Period)
	}

	return dataframe.New(
		series.New(weekday, series.String, "weekday"),
		series.New(line, series.String, "line"),
		series.New(station, series.String, "station_name"),
		series.New(direction, series.String, "direction"),
		series.New(slot, series.String, "time_slot"),
		series.New(congestion, series.Float, "congestion"),
		series.New(hour, series.Int, "hour"),
		series.New(period, series.String, "period"),
	)
}

// WriteXLSX 写出 xlsx
func WriteXLSX(w io.Writer, rows []DownloadRow) error {
	return utils.SaveToExcel(DownloadFrame(rows), w, "congestion")
}
