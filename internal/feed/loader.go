package feed

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kobza-harvester/authdedup/internal/models"
)

// Loader reads harvested authority records from a feed file
type Loader struct {
	path   string
	logger *slog.Logger
}

// NewLoader creates a new feed loader
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		path:   path,
		logger: logger,
	}
}

// Load loads every record from the feed file (JSONL or Parquet). Malformed
// JSON lines are logged and skipped.
func (l *Loader) Load() ([]models.RawAuthority, error) {
	return l.LoadSample(0)
}

// LoadSample loads at most limit records. A limit of zero loads everything.
func (l *Loader) LoadSample(limit int) ([]models.RawAuthority, error) {
	ext := strings.ToLower(filepath.Ext(l.path))

	switch ext {
	case ".parquet":
		return l.loadParquet(limit)
	case ".jsonl", ".json":
		return l.loadJSONL(limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
}

func (l *Loader) loadJSONL(limit int) ([]models.RawAuthority, error) {
	l.logger.Debug("Opening JSONL feed", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}
	defer file.Close()

	var records []models.RawAuthority
	scanner := bufio.NewScanner(file)

	// MARCXML records can be large
	const maxCapacity = 10 * 1024 * 1024 // 10MB per line
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		if limit > 0 && len(records) >= limit {
			break
		}
		lineNum++
		line := scanner.Bytes()

		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record models.RawAuthority
		if err := json.Unmarshal(line, &record); err != nil {
			l.logger.Error("Skipping malformed feed line", "line", lineNum, "error", err)
			continue
		}

		records = append(records, record)

		if lineNum%10000 == 0 {
			l.logger.Debug("Reading JSONL", "lines_read", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading feed: %w", err)
	}

	l.logger.Debug("Finished reading JSONL feed", "total_records", len(records), "total_lines", lineNum)

	return records, nil
}

func (l *Loader) loadParquet(limit int) ([]models.RawAuthority, error) {
	l.logger.Debug("Opening Parquet feed", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	l.logger.Debug("Parquet feed opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[models.RawAuthority](pf)
	defer reader.Close()

	var records []models.RawAuthority
	rows := make([]models.RawAuthority, 128)

	for limit <= 0 || len(records) < limit {
		n, err := reader.Read(rows)
		if n > 0 {
			if limit > 0 && n > limit-len(records) {
				n = limit - len(records)
			}
			records = append(records, rows[:n]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	l.logger.Debug("Finished reading Parquet feed", "total_records", len(records))

	return records, nil
}
