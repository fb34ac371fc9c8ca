package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"SubwayCongestion/src/datasource/email"
	"SubwayCongestion/src/datasource/file"
	"SubwayCongestion/src/processor"
)

func newETLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etl",
		Short: "原始宽表 -> 长表 parquet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.logger.Close()
			a.logger.SetMirror(os.Stdout)

			// 命令行参数优先于配置文件
			if cmd.Flags().Changed("fetch-mail") {
				a.cfg.ETL.FetchMail, _ = cmd.Flags().GetBool("fetch-mail")
			}
			if cmd.Flags().Changed("mail-report") {
				a.cfg.ETL.MailReport, _ = cmd.Flags().GetBool("mail-report")
			}
			if cmd.Flags().Changed("schedule") {
				a.cfg.ETL.Schedule, _ = cmd.Flags().GetString("schedule")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runETL(ctx)
		},
	}
	cmd.Flags().Bool("fetch-mail", false, "执行前从邮箱拉取最新的原始数据附件")
	cmd.Flags().Bool("mail-report", false, "执行后把校验报告发送给 report_to")
	cmd.Flags().String("schedule", "", "cron 表达式(如 \"@every 24h\")，为空则只执行一次")
	return cmd
}

// runETL 执行一次，或按 schedule 定时执行直到收到退出信号
func (a *app) runETL(ctx context.Context) error {
	if err := file.EnsureDir(a.cfg.ETL.RawDir); err != nil {
		return err
	}
	pipeline := processor.NewPipeline(a.cfg, a.dcfg, a.logger)

	if a.cfg.ETL.Schedule == "" {
		_, err := a.etlJob(ctx, pipeline)
		return err
	}

	// 设置定时任务
	c := cron.New()
	err := c.AddFunc(a.cfg.ETL.Schedule, func() {
		if _, err := a.etlJob(ctx, pipeline); err != nil {
			a.logger.Error("定时ETL失败: " + err.Error())
		}
		a.rotateLog()
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}

	c.Start()
	defer c.Stop()

	a.logger.Info(fmt.Sprintf("ETL定时任务已启动(%s)，按Ctrl+C退出", a.cfg.ETL.Schedule))
	<-ctx.Done()
	a.logger.Info("收到退出信号，停止定时任务")
	return nil
}

// etlJob 可选的邮件拉取 -> ETL -> 可选的报告发送
func (a *app) etlJob(ctx context.Context, pipeline *processor.Pipeline) (*processor.Result, error) {
	var res *processor.Result
	var runErr error
	if source := a.snapshotSource(); source != "" {
		res, runErr = pipeline.RunSource(ctx, source)
	} else {
		res, runErr = pipeline.Run(ctx)
	}

	if a.cfg.ETL.MailReport {
		subject, lines := reportContent(res, runErr)
		if err := email.SendReport(a.cfg, subject, lines, "", nil); err != nil {
			a.logger.Error("发送校验报告失败: " + err.Error())
		} else {
			a.logger.Info("校验报告已发送: " + subject)
		}
	}
	return res, runErr
}

// snapshotSource 拉取邮件附件并返回本次应处理的原始文件，为空时由流水线扫描原始目录
func (a *app) snapshotSource() string {
	if !a.cfg.ETL.FetchMail {
		return ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	fetch := a.fetch
	if fetch == nil {
		fetch = a.fetchSnapshot
	}
	saved, err := fetch()
	if err != nil {
		// 拉取失败时沿用上一次拉取的文件或目录中已有的原始文件
		a.logger.Warning("拉取邮件附件失败: " + err.Error())
	}
	if len(saved) > 0 {
		a.lastSnapshot = saved[0]
	}

	// 已处理过的邮件不会重复保存，继续使用上一次拉取的文件
	if a.lastSnapshot != "" {
		if _, err := os.Stat(a.lastSnapshot); err != nil {
			a.logger.Warning("上次拉取的原始文件不可用: " + err.Error())
			a.lastSnapshot = ""
		}
	}
	return a.lastSnapshot
}

// fetchSnapshot 返回本次新保存的附件路径
func (a *app) fetchSnapshot() ([]string, error) {
	client := email.NewEmailClient(a.cfg.Email.Server, a.cfg.Email.Username, a.cfg.Email.Password, a.logger)

	saved, err := email.FetchLatestSnapshot(client, a.cfg.Email.TargetSubject, a.snapshotHandler(), a.logger)
	if err != nil {
		return nil, err
	}
	for _, path := range saved {
		a.logger.Info("已保存原始数据: " + path)
	}
	return saved, nil
}

// snapshotHandler 在多次定时运行之间复用，保留已处理邮件的 UID
func (a *app) snapshotHandler() *email.SnapshotAttachmentHandler {
	if a.snapshots == nil {
		a.snapshots = email.NewSnapshotAttachmentHandler(a.cfg.Email.TargetSubject, a.cfg.ETL.RawDir, a.logger)
	}
	return a.snapshots
}

// reportContent 校验报告的主题与正文
func reportContent(res *processor.Result, runErr error) (string, []string) {
	if runErr != nil {
		return "[혼잡도 ETL] 실패", []string{"[ERROR] " + runErr.Error()}
	}

	lines := []string{
		fmt.Sprintf("run_id: %s", res.RunID),
		fmt.Sprintf("source: %s (%s)", res.Source, res.Encoding),
		fmt.Sprintf("output: %s, %d rows, %v", res.OutputPath, res.Rows, res.Elapsed),
		"",
	}
	if res.Report != nil {
		lines = append(lines, res.Report.Lines()...)
	}
	return "[혼잡도 ETL] 검증 리포트 " + res.RunID, lines
}
