package processor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"SubwayCongestion/src/config"
)

var (
	// ErrNoTimeColumns 表头中没有任何 "<时>시<分>분" 列
	ErrNoTimeColumns = errors.New("no time-slot columns detected")
	// ErrMissingIdentifier 缺少必需的标识列
	ErrMissingIdentifier = errors.New("missing identifier column")
)

// 与表头前缀匹配，例如 "5시30분"
var timeSlotPattern = regexp.MustCompile(`^(\d+)시(\d+)분`)

// HeaderKind 表头分类
type HeaderKind int

const (
	HeaderUnrecognized HeaderKind = iota
	HeaderIdentifier
	HeaderTimeSlot
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderIdentifier:
		return "identifier"
	case HeaderTimeSlot:
		return "time-slot"
	default:
		return "unrecognized"
	}
}

// TimeSlotColumn 一个时间列：原始表头、规范化 HH:MM 与顺序号
type TimeSlotColumn struct {
	Index      int // 在原始表头中的位置
	Header     string
	Normalized string
	Order      int
}

// HeaderScan 表头扫描结果
type HeaderScan struct {
	Kinds        []HeaderKind     // 与输入表头一一对应
	Identifiers  map[string]int   // 字段名 -> 列位置
	TimeColumns  []TimeSlotColumn // 按表头顺序
	Unrecognized []string
}

// NormalizeTimeSlot "5시30분" -> "05:30"
func NormalizeTimeSlot(header string) (string, bool) {
	m := timeSlotPattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ClassifyHeaders 两遍扫描：先给每个表头分类，再按出现顺序为时间列编号
// 参数:
//
//	headers: 原始表头(声明顺序)
//	dcfg: 标识列映射
func ClassifyHeaders(headers []string, dcfg *config.DataConfig) (*HeaderScan, error) {
	scan := &HeaderScan{
		Kinds:       make([]HeaderKind, len(headers)),
		Identifiers: make(map[string]int, len(config.IdentifierFields)),
	}

	// 第一遍：分类
	normalized := make([]string, len(headers))
	for i, h := range headers {
		if field, ok := dcfg.FieldForHeader(h); ok {
			if _, dup := scan.Identifiers[field]; !dup {
				scan.Kinds[i] = HeaderIdentifier
				scan.Identifiers[field] = i
				continue
			}
		}
		if slot, ok := NormalizeTimeSlot(h); ok {
			scan.Kinds[i] = HeaderTimeSlot
			normalized[i] = slot
			continue
		}
		scan.Kinds[i] = HeaderUnrecognized
		scan.Unrecognized = append(scan.Unrecognized, h)
	}

	// 第二遍：编号
	for i, kind := range scan.Kinds {
		if kind != HeaderTimeSlot {
			continue
		}
		scan.TimeColumns = append(scan.TimeColumns, TimeSlotColumn{
			Index:      i,
			Header:     headers[i],
			Normalized: normalized[i],
			Order:      len(scan.TimeColumns),
		})
	}

	if len(scan.TimeColumns) == 0 {
		return scan, ErrNoTimeColumns
	}

	var missing []string
	for _, field := range config.IdentifierFields {
		if _, ok := scan.Identifiers[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return scan, fmt.Errorf("%w: %s", ErrMissingIdentifier, strings.Join(missing, ", "))
	}

	return scan, nil
}
