// reader.go
package file

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrNoSourceFile 原始目录中没有可用的 CSV/XLSX 文件
	ErrNoSourceFile = errors.New("no raw source file found")
	// ErrUnknownEncoding 所有候选编码都无法解码
	ErrUnknownEncoding = errors.New("no candidate encoding could decode the file")
)

var sourceExts = []string{".csv", ".xlsx"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawTable 原始宽表
type RawTable struct {
	Path     string
	Headers  []string            // 原始表头，保持声明顺序
	Frame    dataframe.DataFrame // 全部为字符串列
	Encoding string              // 实际使用的编码
}

// Rows 返回数据行数
func (t *RawTable) Rows() int {
	return t.Frame.Nrow()
}

// Column 按表头位置取整列的原始值
func (t *RawTable) Column(i int) []string {
	return t.Frame.Col(t.Frame.Names()[i]).Records()
}

// EnsureDir 确保目录存在
func EnsureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}

// FindSource 在 rawDir 中按文件名排序取第一个 CSV/XLSX 文件
func FindSource(rawDir string) (string, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoSourceFile, rawDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range sourceExts {
			if ext == want {
				names = append(names, entry.Name())
				break
			}
		}
	}

	if len(names) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoSourceFile, rawDir)
	}
	sort.Strings(names)
	return filepath.Join(rawDir, names[0]), nil
}

// ReadRawTable 读取原始宽表
// 参数:
//
//	filePath: CSV 或 XLSX 文件路径
//	encodings: CSV 的候选编码，按顺序尝试
//	sheetName: XLSX 工作表名，为空取第一个
func ReadRawTable(filePath string, encodings []string, sheetName string) (*RawTable, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		return ReadXLSX(filePath, sheetName)
	}
	return ReadCSV(filePath, encodings)
}

// ReadCSV 依次尝试候选编码，第一个能完整解码的编码胜出
func ReadCSV(filePath string, encodings []string) (*RawTable, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取CSV失败: %w", err)
	}

	var attempts []string
	for _, name := range encodings {
		text, err := decode(raw, name)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		records, err := parseCSV(text)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		table, err := newRawTable(filePath, records)
		if err != nil {
			return nil, err
		}
		table.Encoding = name
		return table, nil
	}

	return nil, fmt.Errorf("%w: %s [%s]", ErrUnknownEncoding, filePath, strings.Join(attempts, "; "))
}

// lookupEncoding 把配置中的编码名映射为 x/text 编码
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cp949", "euc-kr", "euckr", "ks_c_5601-1987", "uhc":
		return korean.EUCKR, nil
	case "utf-8", "utf8", "utf-8-sig":
		return unicode.UTF8, nil
	case "gbk", "cp936":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// decode 解码失败或出现替换字符都视为该编码不适用
func decode(raw []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}

	reader := transform.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", fmt.Errorf("invalid byte sequence")
	}
	return string(decoded), nil
}

func parseCSV(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	return records, nil
}

// ReadXLSX 读取 XLSX，第一行为表头
func ReadXLSX(filePath, sheetName string) (*RawTable, error) {
	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("工作表 %s 不存在: %s", sheetName, filePath)
		}
		sheet = s
	}

	// 3. 转换为二维字符串
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		values := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			values[i] = cell.Value
		}
		records = append(records, values)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("工作表为空: %s", filePath)
	}

	table, err := newRawTable(filePath, records)
	if err != nil {
		return nil, err
	}
	table.Encoding = "xlsx"
	return table, nil
}

// newRawTable 将二维字符串转换为 Gota DataFrame，短行以空串补齐
func newRawTable(filePath string, records [][]string) (*RawTable, error) {
	headers := make([]string, len(records[0]))
	copy(headers, records[0])
	if len(headers) == 0 {
		return nil, fmt.Errorf("表头为空: %s", filePath)
	}

	padded := make([][]string, 0, len(records))
	padded = append(padded, headers)
	for _, row := range records[1:] {
		values := make([]string, len(headers))
		copy(values, row)
		padded = append(padded, values)
	}

	var df dataframe.DataFrame
	if len(padded) == 1 {
		// 只有表头: LoadRecords 不接受空表
		cols := make([]series.Series, len(headers))
		for i, colName := range headers {
			cols[i] = series.New([]string{}, series.String, colName)
		}
		df = dataframe.New(cols...)
	} else {
		// 全部按字符串读入，不做类型推断，也不把 "NA" 之类的文本当作缺失
		df = dataframe.LoadRecords(padded,
			dataframe.DetectTypes(false),
			dataframe.DefaultType(series.String),
			dataframe.NaNValues(nil),
		)
	}
	if df.Err != nil {
		return nil, fmt.Errorf("构建DataFrame失败: %w", df.Err)
	}

	return &RawTable{Path: filePath, Headers: headers, Frame: df}, nil
}
