package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSVParser renders a CSV file as one Markdown table, first record as header.
type CSVParser struct{}

func (p *CSVParser) SupportedFormats() []string { return []string{"csv"} }

func (p *CSVParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening CSV: %v", ErrUnreadable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading CSV: %v", ErrUnreadable, err)
		}
		if len(rows)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if rowBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return &ParseResult{Method: "native"}, nil
	}
	return &ParseResult{
		Sections: []Section{{Content: markdownTable(rows), Type: "table"}},
		Method:   "native",
		Metadata: map[string]string{"row_count": strconv.Itoa(len(rows))},
	}, nil
}
