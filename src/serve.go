package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"SubwayCongestion/src/api"
	"SubwayCongestion/src/dataset"
	"SubwayCongestion/src/datasource/file"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动长表查询 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.logger.Close()

			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", ":8080", "监听地址")
	return cmd
}

// serve 启动 HTTP 服务，ctx 结束后优雅退出
func (a *app) serve(ctx context.Context) error {
	path := a.cfg.ETL.OutputPath
	cache := dataset.NewCache(1, nil)

	// 启动时预加载一次，失败只记录，/health 会报告不可用
	if ds, err := cache.Get(path); err != nil {
		a.logger.Warning("数据集尚未生成: " + err.Error())
	} else {
		a.logger.Info(fmt.Sprintf("已加载数据集 %s (%d 行)", path, ds.Len()))
	}

	if a.cfg.Server.WatchDataset {
		go a.watchDataset(ctx, cache, path)
	}
	go a.reopenOnHangup(ctx)

	// 日志轮转检查
	c := cron.New()
	if err := c.AddFunc("@every 1m", a.rotateLog); err != nil {
		return fmt.Errorf("创建日志轮转任务失败: %w", err)
	}
	c.Start()
	defer c.Stop()

	handler := api.NewHandler(api.SourceFunc(func() (*dataset.Dataset, error) {
		return cache.Get(path)
	}), a.dcfg, a.logger)

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      handler.Routes(a.cfg.Server.AllowedOrigins),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP服务启动: " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP服务异常退出: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("收到退出信号，正在关闭HTTP服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭HTTP服务失败: %w", err)
	}
	return nil
}

// watchDataset 数据文件被 ETL 重写后使缓存失效
func (a *app) watchDataset(ctx context.Context, cache *dataset.Cache, path string) {
	monitor, err := file.NewFileMonitor(path)
	if err != nil {
		a.logger.Error("创建文件监控失败: " + err.Error())
		return
	}
	defer monitor.Close()

	err = monitor.Watch(ctx, func(changed string) {
		cache.Invalidate(path)
		a.logger.Info("数据文件已更新，缓存失效: " + changed)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("文件监控异常: " + err.Error())
	}
}

// reopenOnHangup 收到 SIGHUP 时重新打开日志文件(配合外部 logrotate)
func (a *app) reopenOnHangup(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			if err := a.logger.Reopen(""); err != nil {
				fmt.Fprintln(os.Stderr, "重新打开日志失败:", err)
				continue
			}
			a.logger.Info("收到 SIGHUP，日志文件已重新打开")
		case <-ctx.Done():
			return
		}
	}
}
