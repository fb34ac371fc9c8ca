package api

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"SubwayCongestion/src/query"
)

// errBadParam 请求参数无效，统一返回 400
var errBadParam = errors.New("invalid parameter")

func badParam(name, raw string) error {
	return fmt.Errorf("%w: %s=%q", errBadParam, name, raw)
}

// parseCriteria 从查询串构造过滤条件
// 参数:
//
//	q: 请求的查询参数
//	allWeekdays: 配置中"不限星期"的取值，与 query.AllWeekdays 等价
func parseCriteria(q url.Values, allWeekdays string) (query.Criteria, error) {
	c := query.Criteria{
		Weekday:    strings.TrimSpace(q.Get("weekday")),
		Lines:      multi(q, "line"),
		Stations:   multi(q, "station"),
		Directions: multi(q, "direction"),
	}
	if allWeekdays != "" && c.Weekday == allWeekdays {
		c.Weekday = query.AllWeekdays
	}

	_, hasFrom := q["from"]
	_, hasTo := q["to"]
	if !hasFrom && !hasTo {
		return c, nil
	}

	r := query.OrderRange{Lo: 0, Hi: math.MaxInt}
	if hasFrom {
		lo, err := strconv.Atoi(strings.TrimSpace(q.Get("from")))
		if err != nil || lo < 0 {
			return c, badParam("from", q.Get("from"))
		}
		r.Lo = lo
	}
	if hasTo {
		hi, err := strconv.Atoi(strings.TrimSpace(q.Get("to")))
		if err != nil || hi < 0 {
			return c, badParam("to", q.Get("to"))
		}
		r.Hi = hi
	}
	if r.Lo > r.Hi {
		return c, fmt.Errorf("%w: from > to", errBadParam)
	}
	c.TimeRange = &r
	return c, nil
}

// multi 可重复参数；参数存在但值全为空时返回空列表(而非 nil)
func multi(q url.Values, name string) []string {
	raw, ok := q[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// intParam 可选的整数参数，缺省时返回 def
func intParam(q url.Values, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, badParam(name, raw)
	}
	return n, nil
}

// floatParam 可选的浮点参数，缺省时返回 nil
func floatParam(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, badParam(name, raw)
	}
	return &f, nil
}
