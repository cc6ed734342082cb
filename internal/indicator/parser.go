package indicator

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode"
)

// Parse reads an IOC feed in any common delimited dialect and returns its
// records in input order. The first row is treated as the header. Rows that
// are blank, commented out with '#' or missing a package name are skipped;
// short rows are padded rather than rejected. Parse never fails: text it
// cannot make sense of simply yields fewer records.
func Parse(text string) []Record {
	text = strings.TrimPrefix(text, "\ufeff")
	dialect, _ := Sniff(text)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = dialect.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = dialect.TrimLeadingSpace

	header, err := nextRow(reader, dialect)
	if err != nil {
		return nil
	}

	nameIdx, versionIdx := resolveColumns(header)

	maxIdx := nameIdx
	if versionIdx > maxIdx {
		maxIdx = versionIdx
	}

	var records []Record
	for {
		row, err := nextRow(reader, dialect)
		if err != nil {
			break
		}

		if len(row) == 0 {
			continue
		}
		if strings.HasPrefix(strings.TrimLeftFunc(row[0], unicode.IsSpace), "#") {
			continue
		}

		for len(row) <= maxIdx {
			row = append(row, "")
		}

		name := strings.TrimSpace(row[nameIdx])
		if name == "" {
			continue
		}

		record := Record{Name: name}
		if versionIdx >= 0 {
			record.Version = strings.TrimSpace(row[versionIdx])
		}
		records = append(records, record)
	}

	return records
}

// nextRow returns the next well-formed row, skipping rows the csv reader
// rejects. It only returns an error once the input is exhausted.
func nextRow(reader *csv.Reader, dialect Dialect) ([]string, error) {
	for {
		row, err := reader.Read()
		if err == nil {
			return unquote(row, dialect), nil
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
}

// unquote strips single quotes when the feed uses them; encoding/csv only
// understands double quotes.
func unquote(row []string, dialect Dialect) []string {
	if dialect.Quote != '\'' {
		return row
	}
	for i, field := range row {
		trimmed := strings.TrimSpace(field)
		if len(trimmed) >= 2 && trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'' {
			row[i] = trimmed[1 : len(trimmed)-1]
		}
	}
	return row
}

// resolveColumns finds the package and version columns in header. The
// version index is -1 when the feed has no version column.
func resolveColumns(header []string) (int, int) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	nameIdx := findColumn(normalized, nameHeaders)
	if nameIdx < 0 {
		nameIdx = 0
	}

	versionIdx := findColumn(normalized, versionHeaders)
	if versionIdx < 0 && len(header) > 1 {
		versionIdx = 1
	}

	return nameIdx, versionIdx
}

func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, h := range header {
			if h == cand {
				return i
			}
		}
	}
	return -1
}
