package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"vestingSubmitter/internal/model"
)

// CSVSource reads vesting rows lazily from a CSV file with row number,
// address, and balance columns. Rows are only materialized when the consumer
// asks for the next one, so at most one record is ever ahead of consumption.
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	logger  *zap.Logger
	started bool
}

// NewCSVSource opens the record set at path.
func NewCSVSource(path string, logger *zap.Logger) (*CSVSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	return &CSVSource{
		file:   file,
		reader: reader,
		logger: logger,
	}, nil
}

// Next materializes the next row. ok is false once all records have been
// delivered; a non-nil error with ok false means the source itself failed.
// Malformed records are logged and skipped.
func (s *CSVSource) Next(ctx context.Context) (model.VestingRow, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return model.VestingRow{}, false, ctx.Err()
		default:
		}

		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return model.VestingRow{}, false, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			s.logger.Warn("skip unparseable record", zap.Int("line", parseErr.Line), zap.Error(err))
			continue
		}
		if err != nil {
			return model.VestingRow{}, false, fmt.Errorf("read source record: %w", err)
		}

		if !s.started {
			s.started = true
			if isHeader(record) {
				continue
			}
		}

		if isBlank(record) {
			continue
		}
		if len(record) < 3 {
			s.logger.Warn("skip record with missing columns", zap.Strings("fields", record))
			continue
		}

		return model.VestingRow{
			Sequence: strings.TrimSpace(record[0]),
			Address:  strings.TrimSpace(record[1]),
			Amount:   cleanAmount(record[2]),
		}, true, nil
	}
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	return s.file.Close()
}

// cleanAmount strips embedded quote characters and surrounding whitespace.
// The balance stays a decimal string; the contract validates it.
func cleanAmount(input string) string {
	cleaned := strings.NewReplacer(`"`, "", `'`, "").Replace(input)
	return strings.TrimSpace(cleaned)
}

// isHeader reports whether the first record looks like column names rather
// than data: a header's row-number column carries no digits.
func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	return !strings.ContainsAny(record[0], "0123456789")
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
