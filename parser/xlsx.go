package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser converts workbooks into one Markdown section per visible
// sheet. Each blank-row-delimited block of cells becomes a table.
type XLSXParser struct {
	IncludeHidden bool
}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening XLSX: %v", ErrUnreadable, err)
	}
	defer f.Close()

	var sections []Section
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.IncludeHidden {
			if visible, err := f.GetSheetVisible(sheet); err == nil && !visible {
				slog.Debug("xlsx: skipping hidden sheet", "sheet", sheet)
				continue
			}
		}

		content, err := convertSheet(f, sheet)
		if err != nil {
			slog.Warn("xlsx: sheet conversion failed", "sheet", sheet, "error", err)
			continue
		}
		sections = append(sections, Section{
			Heading:    sheet,
			Content:    content,
			Level:      1,
			PageNumber: i + 1,
			Type:       "table",
			Metadata:   map[string]string{"sheet_name": sheet},
		})
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"sheets": strconv.Itoa(len(sections))},
	}, nil
}

var pivotKeywords = []string{"grand total", "total", "sum of", "count of", "average of"}

// cellBlock is a run of non-blank rows. Rows and columns are 1-based
// sheet coordinates, inclusive.
type cellBlock struct {
	firstRow, lastRow int
	firstCol, lastCol int
}

type mergeSpan struct {
	row, col     int
	rows, cols   int
	coveredCells map[[2]int]bool
}

type fontInfo struct {
	bold, italic, strike bool
	size                 float64
	family               string
}

func convertSheet(f *excelize.File, sheet string) (string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", err
	}
	merges := sheetMerges(f, sheet)

	blocks := findBlocks(rows)
	if len(blocks) == 0 {
		return "*No data found in this sheet*", nil
	}

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, renderBlock(f, sheet, rows, b, merges))
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

func cellAt(rows [][]string, row, col int) string {
	if row < 1 || row > len(rows) || col < 1 || col > len(rows[row-1]) {
		return ""
	}
	return rows[row-1][col-1]
}

func rowBlank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// findBlocks groups consecutive non-blank rows. A block's column span is
// the union of its non-empty cells.
func findBlocks(rows [][]string) []cellBlock {
	var blocks []cellBlock
	var cur *cellBlock
	for i, r := range rows {
		if rowBlank(r) {
			if cur != nil {
				blocks = append(blocks, *cur)
				cur = nil
			}
			continue
		}
		rowNum := i + 1
		if cur == nil {
			cur = &cellBlock{firstRow: rowNum, lastRow: rowNum, firstCol: 1 << 30}
		}
		cur.lastRow = rowNum
		for j, c := range r {
			if strings.TrimSpace(c) == "" {
				continue
			}
			cur.firstCol = min(cur.firstCol, j+1)
			cur.lastCol = max(cur.lastCol, j+1)
		}
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

func sheetMerges(f *excelize.File, sheet string) []mergeSpan {
	cells, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil
	}
	spans := make([]mergeSpan, 0, len(cells))
	for _, mc := range cells {
		c1, r1, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		span := mergeSpan{
			row: r1, col: c1,
			rows: r2 - r1 + 1, cols: c2 - c1 + 1,
			coveredCells: make(map[[2]int]bool),
		}
		for r := r1; r <= r2; r++ {
			for c := c1; c <= c2; c++ {
				if r != r1 || c != c1 {
					span.coveredCells[[2]int{r, c}] = true
				}
			}
		}
		spans = append(spans, span)
	}
	return spans
}

func renderBlock(f *excelize.File, sheet string, rows [][]string, b cellBlock, merges []mergeSpan) string {
	covered := func(r, c int) bool {
		for _, m := range merges {
			if m.coveredCells[[2]int{r, c}] {
				return true
			}
		}
		return false
	}

	var out strings.Builder

	if isPivotBlock(rows, b) {
		if title := titleAbove(rows, b); title != "" {
			out.WriteString("### " + escapeCell(title) + "\n\n")
		}
	}

	var table [][]string
	dataStart := b.firstRow
	if hasHeaderRow(f, sheet, rows, b) {
		header := make([]string, 0, b.lastCol-b.firstCol+1)
		for c := b.firstCol; c <= b.lastCol; c++ {
			if covered(b.firstRow, c) {
				header = append(header, "")
				continue
			}
			header = append(header, escapeCell(cellAt(rows, b.firstRow, c)))
		}
		table = append(table, header)
		dataStart++
	} else {
		header := make([]string, 0, b.lastCol-b.firstCol+1)
		for c := b.firstCol; c <= b.lastCol; c++ {
			name, _ := excelize.ColumnNumberToName(c)
			header = append(header, name)
		}
		table = append(table, header)
	}

	for r := dataStart; r <= b.lastRow; r++ {
		line := make([]string, 0, b.lastCol-b.firstCol+1)
		for c := b.firstCol; c <= b.lastCol; c++ {
			if covered(r, c) {
				line = append(line, "")
				continue
			}
			line = append(line, formatCell(f, sheet, r, c, cellAt(rows, r, c)))
		}
		table = append(table, line)
	}
	out.WriteString(rawMarkdownTable(table))

	var notes []string
	for _, m := range merges {
		if m.row < b.firstRow || m.row > b.lastRow || m.col < b.firstCol || m.col > b.lastCol {
			continue
		}
		notes = append(notes, fmt.Sprintf("* Cell at row %d, column %d spans %d rows and %d columns",
			m.row, m.col, m.rows, m.cols))
	}
	if len(notes) > 0 {
		out.WriteString("\n\n<!-- Merged cells:\n")
		out.WriteString(strings.Join(notes, "\n"))
		out.WriteString("\n-->")
	}
	return out.String()
}

func isPivotBlock(rows [][]string, b cellBlock) bool {
	for c := b.firstCol; c <= b.lastCol; c++ {
		lower := strings.ToLower(cellAt(rows, b.firstRow, c))
		for _, kw := range pivotKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// titleAbove returns the nearest non-empty cell above the block within
// its columns.
func titleAbove(rows [][]string, b cellBlock) string {
	for r := b.firstRow - 1; r >= 1; r-- {
		for c := b.firstCol; c <= b.lastCol; c++ {
			if v := strings.TrimSpace(cellAt(rows, r, c)); v != "" {
				return v
			}
		}
	}
	return ""
}

// hasHeaderRow applies the header heuristic: at least two of bold first
// row, fully populated first row, text header over numeric data, and a
// first-row font that differs from the second row.
func hasHeaderRow(f *excelize.File, sheet string, rows [][]string, b cellBlock) bool {
	if b.lastRow == b.firstRow {
		return false
	}
	indicators := 0

	allBold, allFilled, allText := true, true, true
	for c := b.firstCol; c <= b.lastCol; c++ {
		v := strings.TrimSpace(cellAt(rows, b.firstRow, c))
		if v == "" {
			allFilled = false
			continue
		}
		if isNumeric(v) {
			allText = false
		}
		if !cellFont(f, sheet, b.firstRow, c).bold {
			allBold = false
		}
	}
	if allBold {
		indicators++
	}
	if allFilled {
		indicators++
	}

	secondNumeric := false
	for c := b.firstCol; c <= b.lastCol; c++ {
		if isNumeric(strings.TrimSpace(cellAt(rows, b.firstRow+1, c))) {
			secondNumeric = true
			break
		}
	}
	if allText && secondNumeric {
		indicators++
	}

	if cellFont(f, sheet, b.firstRow, b.firstCol) != cellFont(f, sheet, b.firstRow+1, b.firstCol) {
		indicators++
	}
	return indicators >= 2
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	s = strings.TrimSuffix(strings.ReplaceAll(s, ",", ""), "%")
	_, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	return err == nil
}

func cellFont(f *excelize.File, sheet string, row, col int) fontInfo {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fontInfo{}
	}
	idx, err := f.GetCellStyle(sheet, cell)
	if err != nil || idx == 0 {
		return fontInfo{}
	}
	style, err := f.GetStyle(idx)
	if err != nil || style == nil || style.Font == nil {
		return fontInfo{}
	}
	return fontInfo{
		bold:   style.Font.Bold,
		italic: style.Font.Italic,
		strike: style.Font.Strike,
		size:   style.Font.Size,
		family: style.Font.Family,
	}
}

// formatCell escapes a cell value and applies its hyperlink and font
// styling as Markdown.
func formatCell(f *excelize.File, sheet string, row, col int, value string) string {
	text := escapeCell(value)
	if text == "" {
		return ""
	}

	font := cellFont(f, sheet, row, col)
	if font.strike {
		text = "~~" + text + "~~"
	}
	if font.bold {
		text = "**" + text + "**"
	}
	if font.italic {
		text = "*" + text + "*"
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return text
	}
	if ok, link, err := f.GetCellHyperLink(sheet, cell); err == nil && ok && link != "" {
		text = "[" + text + "](" + link + ")"
	}
	return text
}
