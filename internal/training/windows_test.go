package training

import (
	"testing"

	"github.com/miradorstack/mirador-selfheal/internal/models"
)

func series(n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{float64(i), float64(i * 10)}
	}
	return out
}

func TestWindowsCount(t *testing.T) {
	for _, tc := range []struct{ n, w, want int }{
		{0, 3, 0},
		{3, 3, 0},
		{2, 3, 0},
		{4, 3, 1},
		{25, 10, 15},
		{5, 0, 0},
	} {
		if got := len(Windows(series(tc.n), tc.w)); got != tc.want {
			t.Fatalf("n=%d w=%d: expected %d windows, got %d", tc.n, tc.w, tc.want, got)
		}
	}
}

func TestWindowsContiguity(t *testing.T) {
	windows := Windows(series(12), 4)
	for i, w := range windows {
		if len(w.History) != 4 {
			t.Fatalf("window %d: expected history length 4, got %d", i, len(w.History))
		}
		for j, point := range w.History {
			if point[0] != float64(i+j) {
				t.Fatalf("window %d: history not contiguous at %d: %v", i, j, point)
			}
		}
		if w.Target[0] != float64(i+4) {
			t.Fatalf("window %d: expected target %d, got %v", i, i+4, w.Target)
		}
	}
}

func TestWindowsCopiesHistory(t *testing.T) {
	s := series(5)
	windows := Windows(s, 2)
	s[0][0] = 99
	if windows[0].History[0][0] != 0 {
		t.Fatalf("window history must not alias the input series")
	}
}

func TestRunningRunsSplitsOnGaps(t *testing.T) {
	samples := []models.MetricSample{
		{CPUMilli: 1, Phase: models.PhaseRunning},
		{CPUMilli: 2, Phase: models.PhaseRunning},
		{CPUMilli: 3, Phase: models.PhasePending},
		{CPUMilli: 4, Phase: models.PhaseRunning},
		{CPUMilli: 5, Phase: models.PhaseFailed},
		{CPUMilli: 6, Phase: models.PhaseRunning},
		{CPUMilli: 7, Phase: models.PhaseRunning},
		{CPUMilli: 8, Phase: models.PhaseRunning},
	}
	runs := RunningRuns(samples)
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if len(runs[2]) != 3 || runs[2][0][0] != 6 {
		t.Fatalf("unexpected last run: %v", runs[2])
	}

	windows := RunWindows(runs, 2)
	if len(windows) != 1 {
		t.Fatalf("expected only the last run to yield a window, got %d", len(windows))
	}
	if windows[0].Target[0] != 8 {
		t.Fatalf("unexpected target: %v", windows[0].Target)
	}
}
