// Command datagen writes a synthetic pod metrics dataset for local runs.
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/miradorstack/mirador-selfheal/internal/dataset"
	"github.com/miradorstack/mirador-selfheal/internal/models"
	"github.com/miradorstack/mirador-selfheal/internal/utils"
)

type generator struct {
	rng *rand.Rand
}

func main() {
	var (
		out     string
		pods    int
		runLen  int
		pending int
		failed  int
		seed    int64
	)
	flag.StringVar(&out, "out", "data/pod_metrics.csv", "Output CSV path")
	flag.IntVar(&pods, "pods", 20, "Number of Running pod traces")
	flag.IntVar(&runLen, "run-length", 60, "Samples per Running trace")
	flag.IntVar(&pending, "pending", 40, "Number of Pending contention samples")
	flag.IntVar(&failed, "failed", 20, "Number of Failed samples")
	flag.Int64Var(&seed, "seed", 42, "Random seed")
	flag.Parse()

	logger := utils.NewLogger("info", false, nil)

	f, err := os.Create(out)
	if err != nil {
		logger.Error("create output", slog.String("path", out), slog.Any("error", err))
		os.Exit(1)
	}
	buf := bufio.NewWriter(f)
	w := csv.NewWriter(buf)

	g := generator{rng: rand.New(rand.NewSource(seed))}
	rows := g.rows(pods, runLen, pending, failed)

	if err := w.Write([]string{dataset.ColumnCPU, dataset.ColumnMemory, dataset.ColumnPhase}); err != nil {
		logger.Error("write header", slog.Any("error", err))
		os.Exit(1)
	}
	for _, row := range rows {
		record := []string{format(row.CPUMilli), format(row.MemoryMiB), string(row.Phase)}
		if err := w.Write(record); err != nil {
			logger.Error("write row", slog.Any("error", err))
			os.Exit(1)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Error("flush csv", slog.Any("error", err))
		os.Exit(1)
	}
	if err := buf.Flush(); err != nil {
		logger.Error("flush file", slog.Any("error", err))
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		logger.Error("close output", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("dataset written", slog.String("path", out), slog.Int("rows", len(rows)))
}

// rows interleaves Running traces with Pending and Failed samples so that the
// Running runs are broken up the way a real export is.
func (g generator) rows(pods, runLen, pending, failed int) []models.MetricSample {
	out := make([]models.MetricSample, 0, pods*runLen+pending+failed)
	for p := 0; p < pods; p++ {
		out = append(out, g.trace(runLen)...)
		if p < pending {
			out = append(out, g.contended(p))
		}
		if p < failed {
			out = append(out, g.crashed())
		}
	}
	for p := pods; p < pending; p++ {
		out = append(out, g.contended(p))
	}
	for p := pods; p < failed; p++ {
		out = append(out, g.crashed())
	}
	return out
}

// trace is a slowly drifting Running pod with mild noise.
func (g generator) trace(n int) []models.MetricSample {
	cpu := 500 + g.rng.Float64()*2500
	mem := 1000 + g.rng.Float64()*5000
	cpuDrift := (g.rng.Float64() - 0.5) * 20
	memDrift := g.rng.Float64() * 15
	out := make([]models.MetricSample, n)
	for i := range out {
		out[i] = models.MetricSample{
			CPUMilli:  clamp(cpu + cpuDrift*float64(i) + g.rng.NormFloat64()*40),
			MemoryMiB: clamp(mem + memDrift*float64(i) + g.rng.NormFloat64()*60),
			Phase:     models.PhaseRunning,
		}
	}
	return out
}

// contended alternates CPU and memory pressure on Pending pods.
func (g generator) contended(i int) models.MetricSample {
	s := models.MetricSample{
		CPUMilli:  1000 + g.rng.Float64()*3000,
		MemoryMiB: 2000 + g.rng.Float64()*6000,
		Phase:     models.PhasePending,
	}
	if i%2 == 0 {
		s.CPUMilli = 8500 + g.rng.Float64()*4000
	} else {
		s.MemoryMiB = 16500 + g.rng.Float64()*8000
	}
	return s
}

func (g generator) crashed() models.MetricSample {
	return models.MetricSample{
		CPUMilli:  g.rng.Float64() * 200,
		MemoryMiB: g.rng.Float64() * 300,
		Phase:     models.PhaseFailed,
	}
}

func clamp(v float64) float64 {
	return math.Max(0, v)
}

func format(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
