package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// maxExtractBytes caps in-memory extraction to avoid OOM on huge uploads.
const maxExtractBytes = 200 << 20

// ExtractionService turns uploaded files into plain text for chunking. The
// chunker never sees file formats; this is the only place that knows them.
type ExtractionService struct{}

func NewExtractionService() *ExtractionService {
	return &ExtractionService{}
}

// SupportedTypes lists the file extensions Extract accepts.
func (s *ExtractionService) SupportedTypes() []string {
	return []string{".pdf", ".xlsx", ".csv", ".txt", ".md"}
}

// Extract returns the plain text of a file, dispatching on extension.
func (s *ExtractionService) Extract(filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("file is empty")
	}
	if len(content) > maxExtractBytes {
		return "", fmt.Errorf("file too large for in-memory extraction")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return s.extractPDF(content)
	case ".xlsx":
		return s.extractXLSX(content)
	case ".csv":
		return s.extractCSV(content)
	case ".txt", ".md":
		return s.extractPlain(content)
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

func (s *ExtractionService) extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			slog.Warn("Failed to extract PDF page, skipping", "page", i, "error", err)
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	if extracted == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return extracted, nil
}

func (s *ExtractionService) extractXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			slog.Warn("Failed to read sheet, skipping", "sheet", sheet, "error", err)
			continue
		}
		textBuilder.WriteString(sheet)
		textBuilder.WriteString("\n")
		for _, row := range rows {
			textBuilder.WriteString(strings.Join(row, " | "))
			textBuilder.WriteString("\n")
		}
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	if extracted == "" {
		return "", fmt.Errorf("no text extracted from spreadsheet")
	}
	return extracted, nil
}

func (s *ExtractionService) extractCSV(content []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	var textBuilder strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse CSV: %w", err)
		}
		textBuilder.WriteString(strings.Join(record, " | "))
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	if extracted == "" {
		return "", fmt.Errorf("no rows in CSV")
	}
	return extracted, nil
}

func (s *ExtractionService) extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("file contains no text")
	}
	return text, nil
}
