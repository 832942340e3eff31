package ratedist

import (
	"encoding/json"
	"sort"
)

type stepPoint struct {
	time float64
	rate float64
}

// Step is a piecewise-constant rate that changes at configured times.
type Step struct {
	steps       []stepPoint
	defaultRPS  float64
	parseErr    bool
}

func newStep() Shape { return &Step{} }

func (s *Step) Metadata() Metadata {
	return Metadata{
		Name:        "step",
		Version:     "1.0",
		Description: "Piecewise-constant rate with sudden changes at specified times.",
		Parameters: map[string]Parameter{
			"steps":       {Type: "str", Description: "JSON array of [time, rps] pairs.", Required: false},
			"default_rps": {Type: "float", Default: 0.0, Description: "Rate before the first step.", Required: false},
		},
	}
}

func parseJSONOrList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, true
	case []any:
		return v, true
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

func (s *Step) Initialize(config map[string]any) {
	s.defaultRPS = 0
	if raw, ok := config["default_rps"]; ok {
		v, ok := parseFloat(raw)
		if !ok {
			s.parseErr = true
			return
		}
		s.defaultRPS = v
	}

	raw, present := config["steps"]
	if !present || raw == nil {
		return
	}
	items, ok := parseJSONOrList(raw)
	if !ok {
		s.parseErr = true
		return
	}
	points := make([]stepPoint, 0, len(items))
	for _, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			s.parseErr = true
			return
		}
		t, ok1 := parseFloat(pair[0])
		r, ok2 := parseFloat(pair[1])
		if !ok1 || !ok2 {
			s.parseErr = true
			return
		}
		points = append(points, stepPoint{time: t, rate: r})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].time < points[j].time })
	s.steps = points
}

func (s *Step) Validate() bool {
	if s.parseErr {
		return false
	}
	if s.defaultRPS < 0 {
		return false
	}
	prev := -1.0
	for _, p := range s.steps {
		if p.time < 0 || p.rate < 0 || p.time <= prev {
			return false
		}
		prev = p.time
	}
	return true
}

func (s *Step) GetRate(elapsedSeconds float64, targetRPS float64) float64 {
	if s.parseErr {
		return clampNonNegative(targetRPS)
	}
	if len(s.steps) == 0 {
		return clampNonNegative(targetRPS)
	}
	rate := s.defaultRPS
	for _, p := range s.steps {
		if p.time <= elapsedSeconds {
			rate = p.rate
		} else {
			break
		}
	}
	return clampNonNegative(rate)
}
