package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tacivo/tacivo/internal/blocknote"
)

// CSVImporter handles CSV files. Rows are grouped under "Rows a-b" headings
// and rendered as "header: cell" paragraphs so they survive flattening.
type CSVImporter struct{}

const csvBatchSize = 20

func (p *CSVImporter) Import(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &Document{Title: trimExt(filename, ".csv")}
	if len(records) == 0 {
		return doc, nil
	}

	// First row is headers.
	headers := records[0]
	dataRows := records[1:]

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(dataRows))

		rows := make([]blocknote.Block, 0, end-i)
		for _, row := range dataRows[i:end] {
			rows = append(rows, blocknote.Paragraph(formatRow(headers, row)))
		}
		// 1-indexed, skip header.
		title := fmt.Sprintf("Rows %d-%d", i+2, end+1)
		doc.Blocks = append(doc.Blocks, blocknote.Heading(2, title, rows...))
	}

	return doc, nil
}

func formatRow(headers, row []string) string {
	var text strings.Builder
	for j, cell := range row {
		if j < len(headers) && headers[j] != "" {
			text.WriteString(headers[j] + ": " + cell)
		} else {
			text.WriteString(cell)
		}
		if j < len(row)-1 {
			text.WriteString(", ")
		}
	}
	return text.String()
}
