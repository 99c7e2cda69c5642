package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	set := func(sheet, cell string, v any) {
		t.Helper()
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			t.Fatalf("SetCellValue(%s!%s): %v", sheet, cell, err)
		}
	}

	// Sheet1: a header table, a title cell and a pivot block.
	set("Sheet1", "A1", "Name")
	set("Sheet1", "B1", "Amount")
	set("Sheet1", "A2", "apple")
	set("Sheet1", "B2", 10)
	set("Sheet1", "A3", "pear")
	set("Sheet1", "B3", 5)
	set("Sheet1", "D6", "Sales by region")
	set("Sheet1", "D8", "Region")
	set("Sheet1", "E8", "Sum of Sales")
	set("Sheet1", "D9", "North")
	set("Sheet1", "E9", 100)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		t.Fatalf("NewStyle: %v", err)
	}
	if err := f.SetCellStyle("Sheet1", "A2", "A2", bold); err != nil {
		t.Fatalf("SetCellStyle: %v", err)
	}
	if err := f.SetCellHyperLink("Sheet1", "A3", "https://example.com/pear", "External"); err != nil {
		t.Fatalf("SetCellHyperLink: %v", err)
	}

	// Merged: a merged title row and an escaped pipe.
	if _, err := f.NewSheet("Merged"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	set("Merged", "A1", "Title")
	set("Merged", "A2", "x|y")
	set("Merged", "B2", "z")
	if err := f.MergeCell("Merged", "A1", "B1"); err != nil {
		t.Fatalf("MergeCell: %v", err)
	}

	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}

	if _, err := f.NewSheet("Secret"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	set("Secret", "A1", "classified")
	if err := f.SetSheetVisible("Secret", false); err != nil {
		t.Fatalf("SetSheetVisible: %v", err)
	}

	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func sheetContent(t *testing.T, result *ParseResult, sheet string) string {
	t.Helper()
	for _, s := range result.Sections {
		if s.Heading == sheet {
			return s.Content
		}
	}
	t.Fatalf("sheet %q not in result", sheet)
	return ""
}

func TestXLSXParserSheets(t *testing.T) {
	result, err := (&XLSXParser{}).Parse(context.Background(), buildWorkbook(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var names []string
	for _, s := range result.Sections {
		names = append(names, s.Heading)
	}
	if got := strings.Join(names, ","); got != "Sheet1,Merged,Empty" {
		t.Errorf("sheets = %s, want Sheet1,Merged,Empty (hidden sheet skipped)", got)
	}

	md := RenderMarkdown(result.Sections)
	if !strings.HasPrefix(md, "# Sheet1\n\n") {
		t.Errorf("markdown should start with the sheet title:\n%s", md)
	}
	if strings.Contains(md, "classified") {
		t.Error("hidden sheet content leaked into output")
	}
}

func TestXLSXParserHeaderAndFormatting(t *testing.T) {
	result, err := (&XLSXParser{}).Parse(context.Background(), buildWorkbook(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	content := sheetContent(t, result, "Sheet1")

	blocks := strings.Split(content, "\n\n---\n\n")
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3:\n%s", len(blocks), content)
	}

	wantFirst := "| Name | Amount |\n" +
		"| --- | --- |\n" +
		"| **apple** | 10 |\n" +
		"| [pear](https://example.com/pear) | 5 |"
	if blocks[0] != wantFirst {
		t.Errorf("first block mismatch\ngot:\n%s\nwant:\n%s", blocks[0], wantFirst)
	}

	// A lone cell has no header row; column letters are used instead.
	if blocks[1] != "| D |\n| --- |\n| Sales by region |" {
		t.Errorf("title block = %q", blocks[1])
	}

	if !strings.HasPrefix(blocks[2], "### Sales by region\n\n") {
		t.Errorf("pivot block should carry the title above it:\n%s", blocks[2])
	}
	if !strings.Contains(blocks[2], "| Region | Sum of Sales |") {
		t.Errorf("pivot block missing header:\n%s", blocks[2])
	}
}

func TestXLSXParserMergedAndEmpty(t *testing.T) {
	result, err := (&XLSXParser{}).Parse(context.Background(), buildWorkbook(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	merged := sheetContent(t, result, "Merged")
	for _, want := range []string{
		"| Title |  |",
		"| x\\|y | z |",
		"<!-- Merged cells:\n* Cell at row 1, column 1 spans 1 rows and 2 columns\n-->",
	} {
		if !strings.Contains(merged, want) {
			t.Errorf("merged sheet missing %q:\n%s", want, merged)
		}
	}

	if got := sheetContent(t, result, "Empty"); got != "*No data found in this sheet*" {
		t.Errorf("empty sheet content = %q", got)
	}
}

func TestXLSXParserIncludeHidden(t *testing.T) {
	result, err := (&XLSXParser{IncludeHidden: true}).Parse(context.Background(), buildWorkbook(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(sheetContent(t, result, "Secret"), "classified") {
		t.Error("hidden sheet should be included when IncludeHidden is set")
	}
}

func TestXLSXParserUnreadable(t *testing.T) {
	path := writeFile(t, "broken.xlsx", []byte("not a workbook"))
	_, err := (&XLSXParser{}).Parse(context.Background(), path)
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("error = %v, want ErrUnreadable", err)
	}
}

func TestFindBlocks(t *testing.T) {
	rows := [][]string{
		{"a", "b"},
		{"", "c"},
		{},
		{"", "", ""},
		{"", "", "d"},
	}
	blocks := findBlocks(rows)
	want := []cellBlock{
		{firstRow: 1, lastRow: 2, firstCol: 1, lastCol: 2},
		{firstRow: 5, lastRow: 5, firstCol: 3, lastCol: 3},
	}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(blocks), len(want))
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Errorf("block[%d] = %+v, want %+v", i, blocks[i], want[i])
		}
	}
}

func TestIsNumeric(t *testing.T) {
	tests := map[string]bool{
		"10":     true,
		"-3.5":   true,
		"1,200":  true,
		"45%":    true,
		"$9.99":  true,
		"apple":  false,
		"":       false,
		"12 abc": false,
	}
	for in, want := range tests {
		if got := isNumeric(in); got != want {
			t.Errorf("isNumeric(%q) = %v, want %v", in, got, want)
		}
	}
}
