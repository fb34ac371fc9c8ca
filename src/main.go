package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"SubwayCongestion/src/config"
	"SubwayCongestion/src/datasource/email"
	"SubwayCongestion/src/storage"
)

const (
	defaultConfigDir = "./config"
	configFile       = "config.json"
	dataConfigFile   = "dataconfig.json"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 构建命令树: congestion etl / congestion serve
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "congestion",
		Short:         "지하철 혼잡도 ETL 및 조회 서비스",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", defaultConfigDir, "配置目录(包含 config.json 与 dataconfig.json)")
	root.PersistentFlags().String("env-file", ".env", "环境变量文件，不存在时忽略")

	root.AddCommand(newETLCmd(), newServeCmd())
	return root
}

// app 子命令共享的运行环境
type app struct {
	cfg    *config.Config
	dcfg   *config.DataConfig
	logger *storage.Logger

	mu           sync.Mutex
	fetch        func() ([]string, error) // 为空时使用 fetchSnapshot
	snapshots    *email.SnapshotAttachmentHandler
	lastSnapshot string // 最近一次从邮件拉取的原始文件
}

// bootstrap 加载 .env 与配置并初始化日志系统
func bootstrap(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("加载 %s 失败: %w", envFile, err)
			}
		}
	}

	configDir, _ := cmd.Flags().GetString("config")
	cfg, dcfg, err := config.LoadConfig(configDir, configFile, dataConfigFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.SetLevel(storage.ParseLevel(cfg.LogLevel))
	return &app{cfg: cfg, dcfg: dcfg, logger: logger}, nil
}

// rotateLog 日志超过配置大小时轮转
func (a *app) rotateLog() {
	if a.cfg.LogMaxSize == "" {
		return
	}
	if err := a.logger.CheckRotate(a.cfg.LogMaxSize); err != nil {
		a.logger.Error("日志轮转失败: " + err.Error())
	}
}
