package registry

import (
	"encoding/json"
	"fmt"
	"time"
)

const artifactVersion = 1

const (
	kindIsolationForest = "isolation_forest"
	kindRandomForest    = "random_forest"
	kindSequenceModel   = "sequence_model"
)

type envelope struct {
	Kind      string          `json:"kind"`
	Version   int             `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	Model     json.RawMessage `json:"model"`
}

type validator interface {
	Validate() error
}

func encodeArtifact(kind string, model any, trainedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return json.Marshal(envelope{
		Kind:      kind,
		Version:   artifactVersion,
		TrainedAt: trainedAt.UTC(),
		Model:     raw,
	})
}

func decodeArtifact[T validator](data []byte, kind string) (T, error) {
	var model T
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind != kind {
		return model, fmt.Errorf("artifact kind %q, expected %q", env.Kind, kind)
	}
	if env.Version != artifactVersion {
		return model, fmt.Errorf("unsupported artifact version %d", env.Version)
	}
	if err := json.Unmarshal(env.Model, &model); err != nil {
		return model, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := model.Validate(); err != nil {
		return model, fmt.Errorf("invalid %s: %w", kind, err)
	}
	return model, nil
}
