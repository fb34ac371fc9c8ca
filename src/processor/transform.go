package processor

import (
	"fmt"

	"SubwayCongestion/src/config"
	"SubwayCongestion/src/datasource/file"
)

// LongCell 宽表展开后的一个单元：标识字段 + 原始读数 + 时间槽
type LongCell struct {
	Weekday     string
	Line        string
	StationID   string
	StationName string
	Direction   string
	Raw         string
	TimeSlot    string
	TimeOrder   int
}

// Unpivot 宽表转长表
// 输出顺序与 melt 一致：时间列在外层，源数据行在内层；行数恒为 R×T
func Unpivot(table *file.RawTable, scan *HeaderScan) ([]LongCell, error) {
	if len(scan.TimeColumns) == 0 {
		return nil, ErrNoTimeColumns
	}

	ids := make(map[string][]string, len(config.IdentifierFields))
	for _, field := range config.IdentifierFields {
		idx, ok := scan.Identifiers[field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingIdentifier, field)
		}
		ids[field] = table.Column(idx)
	}

	rows := table.Rows()
	cells := make([]LongCell, 0, rows*len(scan.TimeColumns))

	for _, tc := range scan.TimeColumns {
		values := table.Column(tc.Index)
		for r := 0; r < rows; r++ {
			cells = append(cells, LongCell{
				Weekday:     ids[config.FieldWeekday][r],
				Line:        ids[config.FieldLine][r],
				StationID:   ids[config.FieldStationID][r],
				StationName: ids[config.FieldStationName][r],
				Direction:   ids[config.FieldDirection][r],
				Raw:         values[r],
				TimeSlot:    tc.Normalized,
				TimeOrder:   tc.Order,
			})
		}
	}

	return cells, nil
}
