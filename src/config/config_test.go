package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{
		"etl": {"raw_dir": "in", "output_path": "out/congestion.parquet", "schedule": "@every 24h"},
		"server": {"addr": ":9090", "read_timeout": "5s"},
		"email": {"target_subject": "혼잡도"},
		"log_name": "etl.log",
		"log_max_size": "1024 * 1024"
	}`)
	writeFile(t, dir, "dataconfig.json", `{
		"identifier_columns": {"요일구분": "weekday", "호선": "line", "역번호": "station_id", "출발역": "station_name", "상하구분": "direction"},
		"encodings": ["utf-8"]
	}`)

	cfg, dcfg, err := LoadConfig(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, "in", cfg.ETL.RawDir)
	assert.Equal(t, "@every 24h", cfg.ETL.Schedule)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout.Std(), "defaults survive partial files")
	assert.Equal(t, "혼잡도", cfg.Email.TargetSubject)
	assert.Equal(t, []string{"utf-8"}, dcfg.Encodings)
	assert.Equal(t, "전체", dcfg.AllWeekdays)

	field, ok := dcfg.FieldForHeader(" 출발역 ")
	assert.True(t, ok)
	assert.Equal(t, FieldStationName, field)
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, dcfg, err := LoadConfig(t.TempDir(), "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, "data/raw", cfg.ETL.RawDir)
	assert.Equal(t, []string{"cp949", "utf-8"}, dcfg.Encodings)
	assert.Len(t, dcfg.IdentifierColumns, 5)
}

func TestLoadConfigRejectsIncompleteMapping(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dataconfig.json", `{
		"identifier_columns": {"요일구분": "weekday", "호선": "line", "역번호": "station_id", "출발역": "station_name", "방향": "weekday"},
		"encodings": ["cp949"]
	}`)

	_, _, err := LoadConfig(dir, "config.json", "dataconfig.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction")
}

func TestLoadConfigReportsBothParseErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{not json`)
	writeFile(t, dir, "dataconfig.json", `[]`)

	_, _, err := LoadConfig(dir, "config.json", "dataconfig.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "解析Config失败")
	assert.Contains(t, err.Error(), "解析DataConfig失败")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONGESTION_OUTPUT_PATH", "/tmp/override.parquet")
	t.Setenv("CONGESTION_REPORT_TO", "ops@example.com,lead@example.com")

	cfg, _, err := LoadConfig(t.TempDir(), "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.parquet", cfg.ETL.OutputPath)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, cfg.ETL.ReportTo)
}

func TestDurationJSON(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, d, back)
}
