package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-selfheal/internal/models"
)

// Column names required in the training file.
const (
	ColumnCPU    = "cpu_milli"
	ColumnMemory = "memory_mib"
	ColumnPhase  = "pod_phase"
)

// ErrDatasetMissing signals that the training file does not exist.
var ErrDatasetMissing = errors.New("dataset missing")

// CSVSource reads historical samples from a CSV file with a header row.
type CSVSource struct {
	path string
}

// NewCSVSource constructs a CSVSource for path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Load reads every sample in file order. A missing file yields ErrDatasetMissing.
func (s *CSVSource) Load(ctx context.Context) ([]models.MetricSample, error) {
	if s == nil || s.path == "" {
		return nil, fmt.Errorf("dataset path not configured: %w", ErrDatasetMissing)
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dataset %s: %w", s.path, ErrDatasetMissing)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", s.path, err)
	}
	return samples, nil
}

// Parse decodes CSV content. Extra columns are ignored and column order is free.
func Parse(r io.Reader) ([]models.MetricSample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cpuIdx, memIdx, phaseIdx := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnCPU:
			cpuIdx = i
		case ColumnMemory:
			memIdx = i
		case ColumnPhase:
			phaseIdx = i
		}
	}
	if cpuIdx < 0 || memIdx < 0 || phaseIdx < 0 {
		return nil, fmt.Errorf("header must contain %s, %s and %s", ColumnCPU, ColumnMemory, ColumnPhase)
	}

	samples := make([]models.MetricSample, 0, 256)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		cpu, err := parseQuantity(record[cpuIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, ColumnCPU, err)
		}
		mem, err := parseQuantity(record[memIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, ColumnMemory, err)
		}
		samples = append(samples, models.MetricSample{
			CPUMilli:  cpu,
			MemoryMiB: mem,
			Phase:     models.PodPhase(strings.TrimSpace(record[phaseIdx])),
		})
	}
	return samples, nil
}

func parseQuantity(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %v", v)
	}
	return v, nil
}
