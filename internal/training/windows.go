package training

import "github.com/miradorstack/mirador-selfheal/internal/models"

// Window is one forecaster training example.
type Window struct {
	History [][2]float64
	Target  [2]float64
}

// Windows slides a seqLen window over series, producing len(series)-seqLen
// examples whose target immediately follows the history. The series must be
// a single contiguous run.
func Windows(series [][2]float64, seqLen int) []Window {
	if seqLen <= 0 || len(series) <= seqLen {
		return nil
	}
	out := make([]Window, 0, len(series)-seqLen)
	for i := 0; i < len(series)-seqLen; i++ {
		history := make([][2]float64, seqLen)
		copy(history, series[i:i+seqLen])
		out = append(out, Window{History: history, Target: series[i+seqLen]})
	}
	return out
}

// RunningRuns splits samples into maximal contiguous runs of Running samples.
func RunningRuns(samples []models.MetricSample) [][][2]float64 {
	var (
		runs    [][][2]float64
		current [][2]float64
	)
	for _, s := range samples {
		if s.Phase != models.PhaseRunning {
			if len(current) > 0 {
				runs = append(runs, current)
				current = nil
			}
			continue
		}
		current = append(current, [2]float64{s.CPUMilli, s.MemoryMiB})
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

// RunWindows windows each run independently so no example spans a gap.
func RunWindows(runs [][][2]float64, seqLen int) []Window {
	var out []Window
	for _, run := range runs {
		out = append(out, Windows(run, seqLen)...)
	}
	return out
}
