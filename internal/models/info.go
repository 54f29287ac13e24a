package models

// ModelInfo summarises the model registry for status endpoints.
type ModelInfo struct {
	Status         string            `json:"status"`
	Ready          bool              `json:"ready"`
	SeqLen         int               `json:"seq_len"`
	ErrorThreshold float64           `json:"error_threshold"`
	Slots          map[string]string `json:"slots"`
}
