package qdrant

import "encoding/json"

type qdrantEnvelope[T any] struct {
	Result T            `json:"result"`
	Status qdrantStatus `json:"status"`
}

type qdrantStatus struct {
	State string `json:"-"`
	Error string `json:"error,omitempty"`
}

// Qdrant's status field is either the string "ok" or an object with an error.
func (s *qdrantStatus) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s.State = string(data[1 : len(data)-1])
		return nil
	}
	type alias struct {
		Error string `json:"error"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	s.Error = a.Error
	return nil
}

type qdrantPointResult struct {
	Id      string         `json:"id"`
	Score   float64        `json:"score"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantCountResult struct {
	Count int `json:"count"`
}

type qdrantScrollResult struct {
	Points     []qdrantPointResult `json:"points"`
	NextOffset any                 `json:"next_page_offset"`
}
