package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// 标识列对应的字段名
const (
	FieldWeekday     = "weekday"
	FieldLine        = "line"
	FieldStationID   = "station_id"
	FieldStationName = "station_name"
	FieldDirection   = "direction"
)

// IdentifierFields 宽表中必须出现的标识字段(顺序即输出列顺序)
var IdentifierFields = []string{FieldWeekday, FieldLine, FieldStationID, FieldStationName, FieldDirection}

// Config 结构体定义了应用程序的配置结构
type Config struct {
	ETL struct {
		RawDir     string   `json:"raw_dir" validate:"required"`     // 原始CSV/XLSX所在目录
		OutputPath string   `json:"output_path" validate:"required"` // 长表 parquet 输出路径
		SheetName  string   `json:"sheet_name"`                      // XLSX 原始文件的工作表名，为空取第一个
		Schedule   string   `json:"schedule"`                        // cron 表达式，为空则只执行一次
		FetchMail  bool     `json:"fetch_mail"`                      // 执行前是否从邮箱拉取最新附件
		MailReport bool     `json:"mail_report"`                     // 执行后是否发送校验报告
		ReportTo   []string `json:"report_to" validate:"omitempty,dive,email"`
	} `json:"etl"`

	Server struct {
		Addr           string   `json:"addr" validate:"required"`
		AllowedOrigins []string `json:"allowed_origins"`
		ReadTimeout    Duration `json:"read_timeout"`
		WriteTimeout   Duration `json:"write_timeout"`
		WatchDataset   bool     `json:"watch_dataset"` // 数据文件变化时自动失效缓存
	} `json:"server"`

	Email struct {
		Server        string `json:"server"`         // 邮件服务器地址
		Username      string `json:"username"`       // 邮箱用户名
		Password      string `json:"password"`       // 邮箱密码
		TargetSubject string `json:"target_subject"` // 需要匹配的邮件主题
	} `json:"email"`

	SendEmail struct {
		Server   string `json:"server"`   // SMTP 服务器地址
		Username string `json:"username"` // 发件邮箱
		Password string `json:"password"` // 发件密码/授权码
	} `json:"send_email"`

	LogName    string `json:"log_name" validate:"required"`
	LogLevel   string `json:"log_level" validate:"omitempty,oneof=DEBUG INFO WARNING ERROR FATAL debug info warning error fatal"`
	LogMaxSize string `json:"log_max_size"`
}

// DataConfig 数据相关配置：原始表头映射与编码候选
type DataConfig struct {
	IdentifierColumns map[string]string `json:"identifier_columns" validate:"required,min=5"` // 原始表头 -> 字段名
	Encodings         []string          `json:"encodings" validate:"required,min=1"`          // 按顺序尝试的编码
	AllWeekdays       string            `json:"all_weekdays"`                                 // "不限星期"的哨兵值
}

// Default 返回内置默认配置
func Default() (*Config, *DataConfig) {
	var cfg Config
	cfg.ETL.RawDir = "data/raw"
	cfg.ETL.OutputPath = "data/processed/congestion_clean.parquet"
	cfg.Server.Addr = ":8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.ReadTimeout = Duration(15 * time.Second)
	cfg.Server.WriteTimeout = Duration(30 * time.Second)
	cfg.Server.WatchDataset = true
	cfg.LogName = "logs/app.log"
	cfg.LogLevel = "INFO"
	cfg.LogMaxSize = "10 * 1024 * 1024"

	dcfg := DataConfig{
		IdentifierColumns: map[string]string{
			"요일구분": FieldWeekday,
			"호선":   FieldLine,
			"역번호":  FieldStationID,
			"출발역":  FieldStationName,
			"상하구분": FieldDirection,
		},
		Encodings:   []string{"cp949", "utf-8"},
		AllWeekdays: "전체",
	}
	return &cfg, &dcfg
}

// LoadConfig 从 jsonFolder 读取两个配置文件；文件不存在时使用默认值
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	cfg, dcfg, err := loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		return nil, nil, err
	}

	applyEnv(cfg)

	if err := Validate(cfg, dcfg); err != nil {
		return nil, nil, err
	}
	return cfg, dcfg, nil
}

// Validate 校验配置结构与标识列映射
func Validate(cfg *Config, dcfg *DataConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if err := v.Struct(dcfg); err != nil {
		return fmt.Errorf("数据配置校验失败: %w", err)
	}

	seen := make(map[string]bool, len(dcfg.IdentifierColumns))
	for _, field := range dcfg.IdentifierColumns {
		seen[field] = true
	}
	for _, field := range IdentifierFields {
		if !seen[field] {
			return fmt.Errorf("数据配置缺少标识字段 %q 的表头映射", field)
		}
	}
	return nil
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	defCfg, defDcfg := Default()

	configData, err := readFile(filepath.Join(jsonFolder, jsonFile))
	if errors.Is(err, os.ErrNotExist) {
		configData = nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(filepath.Join(jsonFolder, dataJsonFile))
	if errors.Is(err, os.ErrNotExist) {
		dataConfigData = nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, defCfg, cfgChan, errChan)
	go parseDataConfig(dataConfigData, defDcfg, dcfgChan, errChan)

	return waitForResults(cfgChan, dcfgChan, errChan)
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

// parseConfig 在默认值之上解析，文件中缺省的字段保持默认
func parseConfig(data []byte, base *Config, resultChan chan<- *Config, errChan chan<- error) {
	cfg := *base
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			errChan <- fmt.Errorf("解析Config失败: %w", err)
			return
		}
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, base *DataConfig, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := *base
	if len(data) > 0 {
		// 映射表整体替换而不是合并
		dcfg.IdentifierColumns = nil
		if err := json.Unmarshal(data, &dcfg); err != nil {
			errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
			return
		}
		if dcfg.IdentifierColumns == nil {
			dcfg.IdentifierColumns = base.IdentifierColumns
		}
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyEnv 环境变量覆盖(由 main 通过 godotenv 预先加载 .env)
func applyEnv(cfg *Config) {
	if v := os.Getenv("CONGESTION_RAW_DIR"); v != "" {
		cfg.ETL.RawDir = v
	}
	if v := os.Getenv("CONGESTION_OUTPUT_PATH"); v != "" {
		cfg.ETL.OutputPath = v
	}
	if v := os.Getenv("CONGESTION_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CONGESTION_LOG_NAME"); v != "" {
		cfg.LogName = v
	}
	if v := os.Getenv("CONGESTION_MAIL_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
	if v := os.Getenv("CONGESTION_SMTP_PASSWORD"); v != "" {
		cfg.SendEmail.Password = v
	}
	if v := os.Getenv("CONGESTION_REPORT_TO"); v != "" {
		cfg.ETL.ReportTo = strings.Split(v, ",")
	}
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 转换为 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// FieldForHeader 根据原始表头查找标识字段名
func (dc *DataConfig) FieldForHeader(header string) (string, bool) {
	field, ok := dc.IdentifierColumns[strings.TrimSpace(header)]
	return field, ok
}
