package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SubwayCongestion/src/config"
	"SubwayCongestion/src/dataset"
	"SubwayCongestion/src/processor"
	"SubwayCongestion/src/storage"
)

const sampleCSV = "요일구분,호선,역번호,출발역,상하구분,5시30분,6시00분\n" +
	"평일,2호선,222,강남,상선,10.5,0\n" +
	"평일,2호선,220,역삼,하선,,130\n"

func writeConfig(t *testing.T) (configDir, outputPath string) {
	t.Helper()
	root := t.TempDir()
	rawDir := filepath.Join(root, "raw")
	require.NoError(t, os.MkdirAll(rawDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "snapshot.csv"), []byte(sampleCSV), 0644))

	outputPath = filepath.Join(root, "processed", "congestion.parquet")
	cfg := map[string]interface{}{
		"etl":       map[string]interface{}{"raw_dir": rawDir, "output_path": outputPath},
		"server":    map[string]interface{}{"addr": ":0"},
		"log_name":  filepath.Join(root, "logs", "app.log"),
		"log_level": "INFO",
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	configDir = filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, configFile), data, 0644))
	return configDir, outputPath
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"etl", "serve"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestETLCommandWritesDataset(t *testing.T) {
	configDir, outputPath := writeConfig(t)

	root := newRootCmd()
	root.SetArgs([]string{"etl", "--config", configDir, "--env-file", ""})
	require.NoError(t, root.Execute())

	ds, err := dataset.Load(outputPath)
	require.NoError(t, err)
	assert.Equal(t, 2*2, ds.Len())

	missing := 0
	for _, r := range ds.Records() {
		if r.IsMissing {
			missing++
		}
	}
	assert.Equal(t, 2, missing, "blank cell and 0 are both missing")
}

func TestETLCommandRejectsBadSchedule(t *testing.T) {
	configDir, _ := writeConfig(t)

	root := newRootCmd()
	root.SetArgs([]string{"etl", "--config", configDir, "--env-file", "", "--schedule", "every now and then"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "定时任务")
}

func TestReportContent(t *testing.T) {
	subject, lines := reportContent(nil, errors.New("boom"))
	assert.Contains(t, subject, "실패")
	assert.Equal(t, []string{"[ERROR] boom"}, lines)

	res := &processor.Result{RunID: "run-1", Source: "raw.csv", Encoding: "utf-8", Rows: 4,
		Report: processor.Validate(nil, 2)}
	subject, lines = reportContent(res, nil)
	assert.True(t, strings.HasSuffix(subject, "run-1"))
	assert.Equal(t, "run_id: run-1", lines[0])
	assert.Greater(t, len(lines), 4)
}

func newTestApp(t *testing.T, rawDir string) *app {
	t.Helper()
	cfg, dcfg := config.Default()
	cfg.ETL.RawDir = rawDir
	cfg.ETL.OutputPath = filepath.Join(t.TempDir(), "congestion.parquet")
	cfg.ETL.FetchMail = true

	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return &app{cfg: cfg, dcfg: dcfg, logger: logger}
}

func TestETLJobProcessesFetchedSnapshot(t *testing.T) {
	rawDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "2024_09_congestion.csv"), []byte(sampleCSV), 0644))

	fresh := filepath.Join(rawDir, "서울교통공사_혼잡도_20241031.csv")
	freshCSV := sampleCSV + "토요일,1호선,150,서울역,상선,7,101.5\n"

	a := newTestApp(t, rawDir)
	var fetchErr error
	fetched := false
	a.fetch = func() ([]string, error) {
		// 同一封邮件只保存一次
		if fetched {
			return nil, fetchErr
		}
		fetched = true
		require.NoError(t, os.WriteFile(fresh, []byte(freshCSV), 0644))
		return []string{fresh}, nil
	}
	pipeline := processor.NewPipeline(a.cfg, a.dcfg, a.logger)

	res, err := a.etlJob(context.Background(), pipeline)
	require.NoError(t, err)
	assert.Equal(t, fresh, res.Source)
	assert.Equal(t, 3*2, res.Rows)

	// 定时任务再次运行时没有新附件，仍处理上次拉取的文件
	res, err = a.etlJob(context.Background(), pipeline)
	require.NoError(t, err)
	assert.Equal(t, fresh, res.Source)

	fetchErr = errors.New("imap unavailable")
	res, err = a.etlJob(context.Background(), pipeline)
	require.NoError(t, err)
	assert.Equal(t, fresh, res.Source)

	// 文件被移走后回到目录扫描
	require.NoError(t, os.Remove(fresh))
	res, err = a.etlJob(context.Background(), pipeline)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rawDir, "2024_09_congestion.csv"), res.Source)
	assert.Equal(t, 2*2, res.Rows)
}

func TestSnapshotHandlerReusedAcrossRuns(t *testing.T) {
	a := newTestApp(t, t.TempDir())
	first := a.snapshotHandler()
	require.NotNil(t, first)
	assert.Same(t, first, a.snapshotHandler())
}
