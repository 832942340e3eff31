// Package api wires the admission HTTP surface: request/response shapes,
// validation, and Gin route handlers that front the dispatcher, the
// rate-shape registry, and the preset store.
package api

import (
	"errors"

	"github.com/origo-stack/performance-simulator/internal/store"
)

// DistributionRef names a rate-shape plugin and its configuration, mirroring
// original_source's DistributionRequestType union (mix/sequence/plain).
type DistributionRef struct {
	Name   string         `json:"name" binding:"required"`
	Config map[string]any `json:"config"`
}

// StartTestRequest is the body of POST /tests/start.
type StartTestRequest struct {
	TestType        string           `json:"test_type"`
	DurationSeconds *int             `json:"duration_seconds"`
	SpawnRate       float64          `json:"spawn_rate"`
	UserCount       int              `json:"user_count"`
	NumRequests     *int             `json:"num_requests"`
	TargetRPS       *float64         `json:"target_rps"`
	Distribution    *DistributionRef `json:"distribution"`
}

// ErrDistributionNeedsTargetRPS and ErrDistributionNeedsBound mirror
// original_source's start_test/_validate_config 400 messages exactly, so
// both the /tests/start handler and the preset store's validator produce
// the same text.
var (
	ErrDistributionNeedsTargetRPS = errors.New("target_rps is required when using a distribution")
	ErrDistributionNeedsBound     = errors.New("num_requests or duration_seconds is required when using a distribution")
)

// ValidateStartRequest enforces the one cross-field rule spec.md and
// original_source both apply: a distribution implies a target rate and a
// stop condition.
func ValidateStartRequest(req StartTestRequest) error {
	if req.Distribution == nil {
		return nil
	}
	if req.TargetRPS == nil {
		return ErrDistributionNeedsTargetRPS
	}
	if req.NumRequests == nil && req.DurationSeconds == nil {
		return ErrDistributionNeedsBound
	}
	return nil
}

// ToRunConfig builds the dispatcher-facing RunConfig from an admitted
// request, filling in the target URL/method the teacher's engine took as
// per-simulation fields but this domain takes from the resolved target
// configuration (original_source's single BASE_URL).
func ToRunConfig(req StartTestRequest, targetURL, method string) store.RunConfig {
	cfg := store.RunConfig{
		TestType:        req.TestType,
		DurationSeconds: req.DurationSeconds,
		NumRequests:     req.NumRequests,
		TargetRPS:       req.TargetRPS,
		UserCount:       req.UserCount,
		SpawnRate:       req.SpawnRate,
		TargetURL:       targetURL,
		Method:          method,
	}
	if cfg.TestType == "" {
		cfg.TestType = "linear"
	}
	if cfg.UserCount <= 0 {
		cfg.UserCount = 1
	}
	if cfg.SpawnRate <= 0 {
		cfg.SpawnRate = 10.0
	}
	if req.Distribution != nil {
		cfg.Shape = &store.ShapeRef{Name: req.Distribution.Name, Config: req.Distribution.Config}
	}
	return cfg
}

// FromMap reconstructs a StartTestRequest from a generic map, used by the
// preset store's validator since a preset's config is persisted as raw JSON.
func FromMap(config map[string]any) StartTestRequest {
	req := StartTestRequest{}
	if v, ok := config["test_type"].(string); ok {
		req.TestType = v
	}
	if v, ok := asInt(config["duration_seconds"]); ok {
		req.DurationSeconds = &v
	}
	if v, ok := config["spawn_rate"].(float64); ok {
		req.SpawnRate = v
	}
	if v, ok := asInt(config["user_count"]); ok {
		req.UserCount = v
	}
	if v, ok := asInt(config["num_requests"]); ok {
		req.NumRequests = &v
	}
	if v, ok := config["target_rps"].(float64); ok {
		req.TargetRPS = &v
	}
	if raw, ok := config["distribution"].(map[string]any); ok {
		ref := DistributionRef{}
		if name, ok := raw["name"].(string); ok {
			ref.Name = name
		}
		if cfg, ok := raw["config"].(map[string]any); ok {
			ref.Config = cfg
		}
		req.Distribution = &ref
	}
	return req
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
