package query

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"SubwayCongestion/src/dataset"
)

// AllWeekdays "不限星期"的哨兵值
const AllWeekdays = "전체"

// SelectionPolicy 多选过滤器收到空列表时的解释
type SelectionPolicy int

const (
	SelectAll  SelectionPolicy = iota // 空列表不做限制
	SelectNone                        // 空列表不匹配任何行
)

// EmptySelection 当前策略：侧边栏多选默认全选，空列表等同于未传
const EmptySelection = SelectAll

// OrderRange time_order 闭区间
type OrderRange struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Criteria 过滤条件，零值表示不过滤；nil 列表总是表示未传
type Criteria struct {
	Weekday    string
	Lines      []string
	Stations   []string
	Directions []string
	TimeRange  *OrderRange
}

// View 数据集的只读投影，保存原始行号
type View struct {
	ds   *dataset.Dataset
	rows []int
}

// All 不经过滤的完整视图
func All(ds *dataset.Dataset) View {
	rows := make([]int, ds.Len())
	for i := range rows {
		rows[i] = i
	}
	return View{ds: ds, rows: rows}
}

// Len 视图行数
func (v View) Len() int { return len(v.rows) }

// At 视图中第 i 行
func (v View) At(i int) dataset.Record { return v.ds.At(v.rows[i]) }

// Rows 原始行号(升序)
func (v View) Rows() []int {
	out := make([]int, len(v.rows))
	copy(out, v.rows)
	return out
}

// Records 视图中的记录副本
func (v View) Records() []dataset.Record {
	out := make([]dataset.Record, len(v.rows))
	for i, r := range v.rows {
		out[i] = v.ds.At(r)
	}
	return out
}

// Filter 组合各维度谓词(AND)，结果保持数据集原有顺序；无匹配时返回空视图
func Filter(ds *dataset.Dataset, c Criteria) View {
	return filterWithPolicy(ds, c, EmptySelection)
}

func filterWithPolicy(ds *dataset.Dataset, c Criteria, policy SelectionPolicy) View {
	var filters []dataframe.F

	if c.Weekday != "" && c.Weekday != AllWeekdays {
		filters = append(filters, dataframe.F{Colname: "weekday", Comparator: series.Eq, Comparando: c.Weekday})
	}

	for _, sel := range []struct {
		col    string
		values []string
	}{
		{"line", c.Lines},
		{"station_name", c.Stations},
		{"direction", c.Directions},
	} {
		if sel.values == nil {
			continue
		}
		if len(sel.values) == 0 {
			if policy == SelectNone {
				return View{ds: ds}
			}
			continue
		}
		filters = append(filters, dataframe.F{Colname: sel.col, Comparator: series.In, Comparando: sel.values})
	}

	if c.TimeRange != nil {
		filters = append(filters,
			dataframe.F{Colname: "time_order", Comparator: series.GreaterEq, Comparando: c.TimeRange.Lo},
			dataframe.F{Colname: "time_order", Comparator: series.LessEq, Comparando: c.TimeRange.Hi},
		)
	}

	if len(filters) == 0 {
		return All(ds)
	}
	if ds.Len() == 0 {
		return View{ds: ds}
	}

	matched := ds.Frame().FilterAggregation(dataframe.And, filters...)
	if matched.Err != nil || matched.Nrow() == 0 {
		return View{ds: ds}
	}

	rows, err := matched.Col(dataset.RowColumn).Int()
	if err != nil {
		return View{ds: ds}
	}
	return View{ds: ds, rows: rows}
}

// restrict 在视图上再加一个行级谓词
func (v View) restrict(keep func(dataset.Record) bool) View {
	rows := make([]int, 0, len(v.rows))
	for _, r := range v.rows {
		if keep(v.ds.At(r)) {
			rows = append(rows, r)
		}
	}
	return View{ds: v.ds, rows: rows}
}

// valid 去掉 is_missing 的行
func (v View) valid() View {
	return v.restrict(func(r dataset.Record) bool { return !r.IsMissing })
}
