package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"SubwayCongestion/src/config"
	"SubwayCongestion/src/dataset"
	"SubwayCongestion/src/query"
	"SubwayCongestion/src/storage"
	"SubwayCongestion/src/utils"
)

// 预览与排名的取值范围
const (
	defaultPreviewRows = 100
	maxPreviewRows     = 500
	defaultRankingN    = 10
	maxRankingN        = 100
	maxHeatmapStations = 100
)

var downloadFormats = []string{"csv", "xlsx"}

// DatasetSource 提供当前可查询的数据集
type DatasetSource interface {
	Dataset() (*dataset.Dataset, error)
}

// SourceFunc 把普通函数适配为 DatasetSource
type SourceFunc func() (*dataset.Dataset, error)

func (f SourceFunc) Dataset() (*dataset.Dataset, error) { return f() }

// Handler 数据集查询接口
type Handler struct {
	source      DatasetSource
	allWeekdays string
	logger      *storage.Logger
	now         func() time.Time
}

// NewHandler 创建查询接口
// 参数:
//
//	source: 数据集来源(通常是 dataset.Cache 的包装)
//	dcfg: 数据配置，提供"不限星期"的取值
//	logger: 日志记录器，/logs 从它订阅
func NewHandler(source DatasetSource, dcfg *config.DataConfig, logger *storage.Logger) *Handler {
	h := &Handler{source: source, logger: logger, now: time.Now}
	if dcfg != nil {
		h.allWeekdays = dcfg.AllWeekdays
	}
	return h
}

// Routes 注册全部路由
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/logs", h.handleLogs)

	r.Route("/api", func(r chi.Router) {
		r.Get("/options", h.handleOptions)
		r.Get("/kpi", h.handleKPI)
		r.Get("/ranking", h.handleRanking)
		r.Get("/periods", h.handlePeriods)
		r.Get("/stats", h.handleStats)
		r.Get("/peaks", h.handlePeaks)
		r.Get("/heatmap", h.handleHeatmap)
		r.Get("/trend", h.handleTrend)
		r.Get("/distribution", h.handleDistribution)
		r.Get("/preview", h.handlePreview)
		r.Get("/download", h.handleDownload)
	})
	return r
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// KPIResponse KPI 卡片数据
type KPIResponse struct {
	Rows    int           `json:"rows"`
	Max     query.MaxInfo `json:"max"`
	Summary query.Stats   `json:"summary"`
}

// OptionsResponse 过滤控件候选值
type OptionsResponse struct {
	dataset.Options
	AllWeekdays string `json:"all_weekdays"`
}

// PreviewResponse 数据预览
type PreviewResponse struct {
	Total int                 `json:"total"`
	Rows  []query.DownloadRow `json:"rows"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ds, err := h.source.Dataset()
	if err != nil {
		h.writeJSONStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"dataset":   "unavailable",
			"timestamp": h.now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"dataset":   "loaded",
		"rows":      ds.Len(),
		"timestamp": h.now().UTC(),
	})
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(w)
	if !ok {
		return
	}
	all := h.allWeekdays
	if all == "" {
		all = query.AllWeekdays
	}
	h.writeJSON(w, OptionsResponse{Options: dataset.FilterOptions(ds), AllWeekdays: all})
}

func (h *Handler) handleKPI(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, KPIResponse{
		Rows:    v.Len(),
		Max:     query.MaxCongestionInfo(v),
		Summary: query.SummaryStats(v),
	})
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := intParam(q, "n", defaultRankingN, 1, maxRankingN)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	agg, err := query.ParseAggregate(q.Get("aggregate"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.Ranking(v, n, agg))
}

func (h *Handler) handlePeriods(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.PeriodAverage(v))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.SummaryStats(v))
}

func (h *Handler) handlePeaks(w http.ResponseWriter, r *http.Request) {
	threshold, err := floatParam(r.URL.Query(), "threshold")
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.PeakHours(v, threshold))
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query(), "max_stations", query.DefaultHeatmapStations, 1, maxHeatmapStations)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.Heatmap(v, n))
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.Trend(v, multi(r.URL.Query(), "focus")))
}

func (h *Handler) handleDistribution(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, query.Distribution(v))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query(), "rows", defaultPreviewRows, 1, maxPreviewRows)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	// 预览保持过滤后的原始顺序
	rows := make([]query.DownloadRow, 0, n)
	for i := 0; i < v.Len() && i < n; i++ {
		rec := v.At(i)
		rows = append(rows, query.DownloadRow{
			Weekday:     rec.Weekday,
			Line:        rec.Line,
			StationName: rec.StationName,
			Direction:   rec.Direction,
			TimeSlot:    rec.TimeSlot,
			Congestion:  rec.Congestion,
			Hour:        rec.Hour,
			Period:      rec.Period,
		})
	}
	h.writeJSON(w, PreviewResponse{Total: v.Len(), Rows: rows})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	if !utils.Contains(downloadFormats, format) {
		h.writeError(w, badParam("format", format).Error(), http.StatusBadRequest)
		return
	}

	v, ok := h.view(w, r)
	if !ok {
		return
	}
	rows := query.DownloadView(v)

	name := fmt.Sprintf("혼잡도_데이터_%s.%s", h.now().Format("20060102_150405"), format)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))

	var err error
	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = query.WriteXLSX(w, rows)
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = query.WriteCSV(w, rows)
	}
	if err != nil {
		// 响应头已发送，只能记录
		h.logger.Error(fmt.Sprintf("导出%s失败: %v", format, err))
	}
}

// handleLogs 以分块方式持续推送日志
func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if h.logger == nil {
		h.writeError(w, "日志未启用", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	logChan := h.logger.Subscribe()
	defer h.logger.Unsubscribe(logChan)

	flusher, _ := w.(http.Flusher)
	if _, err := fmt.Fprintln(w, "# 已连接日志流"); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			// 写入失败说明客户端已断开
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// dataset 取当前数据集；不可用时写 503
func (h *Handler) dataset(w http.ResponseWriter) (*dataset.Dataset, bool) {
	ds, err := h.source.Dataset()
	if err != nil {
		h.logger.Warning("数据集不可用: " + err.Error())
		h.writeError(w, "dataset unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	return ds, true
}

// view 解析过滤参数并返回过滤后的视图；参数错误写 400
func (h *Handler) view(w http.ResponseWriter, r *http.Request) (query.View, bool) {
	c, err := parseCriteria(r.URL.Query(), h.allWeekdays)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return query.View{}, false
	}
	ds, ok := h.dataset(w)
	if !ok {
		return query.View{}, false
	}
	return query.Filter(ds, c), true
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("写入响应失败: " + err.Error())
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSONStatus(w, status, ErrorResponse{Error: message})
}
