package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-selfheal/internal/models"
)

// DetectRequest is the request body shared by HTTP and gRPC.
type DetectRequest struct {
	Values []ObservationPayload `json:"values"`
}

// ObservationPayload is one submitted sample. Pointers distinguish missing fields from zero.
type ObservationPayload struct {
	CPU    *float64 `json:"cpu"`
	Memory *float64 `json:"memory"`
}

// DetectResponse wraps detection results.
type DetectResponse struct {
	Results []models.Result `json:"results"`
}

// Observations converts the payload into domain observations.
func (r DetectRequest) Observations() ([]models.Observation, error) {
	out := make([]models.Observation, 0, len(r.Values))
	for i, v := range r.Values {
		if v.CPU == nil || v.Memory == nil {
			return nil, fmt.Errorf("values[%d]: cpu and memory are required", i)
		}
		out = append(out, models.Observation{CPU: *v.CPU, Memory: *v.Memory})
	}
	return out, nil
}

// FromStructDetectRequest maps a gRPC Struct with the HTTP body shape into observations.
func FromStructDetectRequest(req *structpb.Struct) ([]models.Observation, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var body DetectRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return body.Observations()
}

// ToStructDetectResponse converts results into the same shape the HTTP API returns.
func ToStructDetectResponse(results []models.Result) (*structpb.Struct, error) {
	if results == nil {
		results = []models.Result{}
	}
	return toStruct(DetectResponse{Results: results})
}

// ToStructModelInfo converts registry status into a Struct.
func ToStructModelInfo(info models.ModelInfo) (*structpb.Struct, error) {
	return toStruct(info)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
