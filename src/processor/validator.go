package processor

import (
	"fmt"
	"sort"
	"strings"

	"SubwayCongestion/src/dataset"
)

// GroupSize 某个组大小及出现的组数
type GroupSize struct {
	Size   int `json:"size"`
	Groups int `json:"groups"`
}

// Report ETL 校验报告，只做观测，不阻止保存
type Report struct {
	RowCount        int         `json:"row_count"`
	ExpectedSlots   int         `json:"expected_slots"`
	DistinctSlots   int         `json:"distinct_slots"`
	DistinctLines   []string    `json:"lines"`    // 排序
	Weekdays        []string    `json:"weekdays"` // 首次出现顺序
	StationCount    int         `json:"station_count"`
	GroupSizes      []GroupSize `json:"group_sizes"` // 按 Size 升序
	GroupsUniform   bool        `json:"groups_uniform"`
	HasValues       bool        `json:"has_values"`
	Min             float64     `json:"min"`
	Max             float64     `json:"max"`
	Over100Count    int         `json:"over_100_count"`
	Over100Pct      float64     `json:"over_100_pct"`
	MissingCount    int         `json:"missing_count"`
	MissingPct      float64     `json:"missing_pct"`
	UnparsableCount int         `json:"unparsable_count"`
}

// SlotsConsistent 去重后的时间槽数与检测到的时间列数一致
func (r *Report) SlotsConsistent() bool {
	return r.DistinctSlots == r.ExpectedSlots
}

type groupKey struct {
	weekday, line, station, direction string
}

// Validate 生成校验报告
// 参数:
//
//	records: 派生后的长表
//	expectedSlots: 检测到的时间列个数
func Validate(records []dataset.Record, expectedSlots int) *Report {
	rep := &Report{
		RowCount:      len(records),
		ExpectedSlots: expectedSlots,
	}

	slots := make(map[string]bool)
	lines := make(map[string]bool)
	weekdaySeen := make(map[string]bool)
	stations := make(map[string]bool)
	groups := make(map[groupKey]int)

	for _, r := range records {
		slots[r.TimeSlot] = true
		lines[r.Line] = true
		stations[r.StationName] = true
		if !weekdaySeen[r.Weekday] {
			weekdaySeen[r.Weekday] = true
			rep.Weekdays = append(rep.Weekdays, r.Weekday)
		}
		groups[groupKey{r.Weekday, r.Line, r.StationName, r.Direction}]++

		if r.IsMissing {
			rep.MissingCount++
		}

		v, ok := r.Value()
		if !ok {
			continue
		}
		if !rep.HasValues || v < rep.Min {
			rep.Min = v
		}
		if !rep.HasValues || v > rep.Max {
			rep.Max = v
		}
		rep.HasValues = true
		if v > 100 {
			rep.Over100Count++
		}
	}

	rep.DistinctSlots = len(slots)
	rep.StationCount = len(stations)
	for line := range lines {
		rep.DistinctLines = append(rep.DistinctLines, line)
	}
	sort.Strings(rep.DistinctLines)

	sizes := make(map[int]int)
	for _, n := range groups {
		sizes[n]++
	}
	for size, count := range sizes {
		rep.GroupSizes = append(rep.GroupSizes, GroupSize{Size: size, Groups: count})
	}
	sort.Slice(rep.GroupSizes, func(i, j int) bool { return rep.GroupSizes[i].Size < rep.GroupSizes[j].Size })
	rep.GroupsUniform = len(rep.GroupSizes) <= 1

	if rep.RowCount > 0 {
		rep.Over100Pct = float64(rep.Over100Count) * 100 / float64(rep.RowCount)
		rep.MissingPct = float64(rep.MissingCount) * 100 / float64(rep.RowCount)
	}
	return rep
}

// Lines 渲染给操作人员看的文本
func (r *Report) Lines() []string {
	var out []string
	mark := func(ok bool) string {
		if ok {
			return "[OK]"
		}
		return "[WARNING]"
	}

	out = append(out, fmt.Sprintf("%s 시간 슬롯 개수: %d (시간 컬럼 %d)", mark(r.SlotsConsistent()), r.DistinctSlots, r.ExpectedSlots))
	out = append(out, fmt.Sprintf("[OK] 호선 목록: %s", strings.Join(r.DistinctLines, ", ")))
	out = append(out, fmt.Sprintf("[OK] 요일 목록: %s", strings.Join(r.Weekdays, ", ")))
	out = append(out, fmt.Sprintf("[OK] 역 개수: %d개", r.StationCount))

	if r.GroupsUniform {
		size := 0
		if len(r.GroupSizes) == 1 {
			size = r.GroupSizes[0].Size
		}
		out = append(out, fmt.Sprintf("[OK] 조합별 row count 일관성: OK (각 %d개)", size))
	} else {
		parts := make([]string, len(r.GroupSizes))
		for i, g := range r.GroupSizes {
			parts[i] = fmt.Sprintf("%d행×%d조합", g.Size, g.Groups)
		}
		out = append(out, fmt.Sprintf("[WARNING] 조합별 row count 불일치: %s", strings.Join(parts, ", ")))
	}

	if r.HasValues {
		out = append(out, fmt.Sprintf("[OK] 혼잡도 범위: %.1f ~ %.1f", r.Min, r.Max))
	} else {
		out = append(out, "[WARNING] 혼잡도 범위: 유효 값 없음")
	}
	out = append(out, fmt.Sprintf("[OK] 100 초과값: %d개 (%.2f%%)", r.Over100Count, r.Over100Pct))
	out = append(out, fmt.Sprintf("[OK] 결측/0.0 값: %d개 (%.2f%%), 파싱 실패 %d개", r.MissingCount, r.MissingPct, r.UnparsableCount))
	out = append(out, fmt.Sprintf("[OK] 최종 행 수: %d", r.RowCount))
	return out
}
