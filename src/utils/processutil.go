package utils

import (
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// SaveToExcel 将DataFrame写成 xlsx，首行为列名，缺失值留空
func SaveToExcel(df dataframe.DataFrame, w io.Writer, sheetName string) error {
	if df.Err != nil {
		return fmt.Errorf("DataFrame无效: %w", df.Err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	} else if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("设置工作表名失败: %w", err)
	}

	// 写入列名
	colNames := df.Names()
	cols := make([]series.Series, len(colNames))
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("写入列名失败: %w", err)
		}
		cols[i] = df.Col(name)
	}

	// 写入数据
	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		for colIdx, col := range cols {
			elem := col.Elem(rowIdx)
			if elem.IsNA() {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, elem.Val()); err != nil {
				return fmt.Errorf("写入单元格失败: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}
