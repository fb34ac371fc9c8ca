package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"SubwayCongestion/src/config"
	"SubwayCongestion/src/dataset"
	"SubwayCongestion/src/datasource/file"
	"SubwayCongestion/src/storage"
)

// Result 一次 ETL 运行的结果
type Result struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Encoding   string        `json:"encoding"`
	OutputPath string        `json:"output_path"`
	Rows       int           `json:"rows"`
	Report     *Report       `json:"report"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Pipeline 宽表 CSV/XLSX -> 长表 parquet
type Pipeline struct {
	cfg    *config.Config
	dcfg   *config.DataConfig
	logger *storage.Logger
	mu     sync.Mutex // 定时任务与手动运行互斥
}

// NewPipeline 创建 ETL 流水线
func NewPipeline(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, dcfg: dcfg, logger: logger}
}

// Run 从原始目录中查找源文件并执行一次完整的 ETL
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	return p.run(ctx, "")
}

// RunSource 对指定的原始文件执行 ETL，不扫描原始目录
func (p *Pipeline) RunSource(ctx context.Context, source string) (*Result, error) {
	if source == "" {
		return nil, fmt.Errorf("etl: empty source path")
	}
	return p.run(ctx, source)
}

// run 任何致命错误都发生在写文件之前；source 为空时按 FindSource 查找
func (p *Pipeline) run(ctx context.Context, source string) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	res := &Result{RunID: uuid.NewString(), OutputPath: p.cfg.ETL.OutputPath}
	p.logger.Info(fmt.Sprintf("[ETL %s] 시작", res.RunID))

	// 1. 查找原始文件
	if source == "" {
		found, err := file.FindSource(p.cfg.ETL.RawDir)
		if err != nil {
			return nil, p.fail(res, err)
		}
		source = found
	}
	res.Source = source

	// 2. 读取并探测编码
	table, err := file.ReadRawTable(source, p.dcfg.Encodings, p.cfg.ETL.SheetName)
	if err != nil {
		return nil, p.fail(res, err)
	}
	res.Encoding = table.Encoding
	p.logger.Info(fmt.Sprintf("[ETL %s] %s 인코딩: %s, shape: (%d, %d)",
		res.RunID, source, table.Encoding, table.Rows(), len(table.Headers)))

	if err := ctx.Err(); err != nil {
		return nil, p.fail(res, err)
	}

	// 3. 表头分类
	scan, err := ClassifyHeaders(table.Headers, p.dcfg)
	if err != nil {
		return nil, p.fail(res, err)
	}
	p.logger.Info(fmt.Sprintf("[ETL %s] 시간 컬럼 개수: %d", res.RunID, len(scan.TimeColumns)))
	if len(scan.Unrecognized) > 0 {
		p.logger.Warning(fmt.Sprintf("[ETL %s] 인식되지 않은 컬럼: %v", res.RunID, scan.Unrecognized))
	}

	// 4. 宽表转长表
	cells, err := Unpivot(table, scan)
	if err != nil {
		return nil, p.fail(res, err)
	}

	// 5. 派生特征
	records, unparsable := DeriveFeatures(cells)
	if unparsable > 0 {
		p.logger.Warning(fmt.Sprintf("[ETL %s] NaN 변환 실패: %d개", res.RunID, unparsable))
	}

	// 6. 校验(不阻止保存)
	report := Validate(records, len(scan.TimeColumns))
	report.UnparsableCount = unparsable
	res.Report = report
	for _, line := range report.Lines() {
		p.logger.Info(fmt.Sprintf("[ETL %s] %s", res.RunID, line))
	}

	if err := ctx.Err(); err != nil {
		return nil, p.fail(res, err)
	}

	// 7. 保存
	if err := dataset.Save(p.cfg.ETL.OutputPath, records); err != nil {
		return nil, p.fail(res, err)
	}
	res.Rows = len(records)
	res.Elapsed = time.Since(start)

	if info, err := os.Stat(p.cfg.ETL.OutputPath); err == nil {
		p.logger.Info(fmt.Sprintf("[ETL %s] 저장 완료: %s (%.2f MB, %v)",
			res.RunID, p.cfg.ETL.OutputPath, float64(info.Size())/(1024*1024), res.Elapsed))
	}
	return res, nil
}

func (p *Pipeline) fail(res *Result, err error) error {
	p.logger.Error(fmt.Sprintf("[ETL %s] 실패: %v", res.RunID, err))
	return fmt.Errorf("etl run %s: %w", res.RunID, err)
}
