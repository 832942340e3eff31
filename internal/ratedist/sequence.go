package ratedist

const (
	postBehaviorHoldLast = "hold_last"
	postBehaviorZero     = "zero"
	postBehaviorRepeat   = "repeat"
)

type sequenceStage struct {
	durationSeconds float64
	plugin          Shape
	start           float64
}

// Sequence is a higher-order shape: a timeline of stages, each owning a
// child shape, followed by a configurable post-exhaust behavior.
type Sequence struct {
	registry     *Registry
	stages       []sequenceStage
	total        float64
	postBehavior string
	parseErr     bool
}

func newSequence(r *Registry) Shape {
	return &Sequence{registry: r, postBehavior: postBehaviorHoldLast}
}

func (s *Sequence) Metadata() Metadata {
	return Metadata{
		Name:        "sequence",
		Version:     "1.0",
		Description: "Staged timeline of rate shapes with a post-exhaust behavior.",
		Parameters: map[string]Parameter{
			"stages":        {Type: "str", Description: "JSON array of {duration_seconds, distribution{name, config}}.", Required: true},
			"post_behavior": {Type: "str", Default: postBehaviorHoldLast, Description: "hold_last, zero, or repeat.", Required: false},
		},
	}
}

func (s *Sequence) Initialize(config map[string]any) {
	s.parseErr = false
	s.stages = nil
	s.total = 0
	s.postBehavior = postBehaviorHoldLast

	if raw, ok := config["post_behavior"]; ok && raw != nil {
		name, ok := raw.(string)
		if !ok {
			s.parseErr = true
			return
		}
		s.postBehavior = name
	}

	raw, present := config["stages"]
	if !present || raw == nil {
		return
	}
	items, ok := parseJSONOrList(raw)
	if !ok {
		s.parseErr = true
		return
	}

	var cursor float64
	for _, item := range items {
		stageRaw, ok := item.(map[string]any)
		if !ok {
			s.parseErr = true
			return
		}
		duration, ok := parseFloat(stageRaw["duration_seconds"])
		if !ok {
			s.parseErr = true
			return
		}
		distRaw, ok := stageRaw["distribution"].(map[string]any)
		if !ok {
			s.parseErr = true
			return
		}
		name, ok := distRaw["name"].(string)
		if !ok || name == "" {
			s.parseErr = true
			return
		}
		var childConfig map[string]any
		if cfgRaw, present := distRaw["config"]; present && cfgRaw != nil {
			childConfig, ok = cfgRaw.(map[string]any)
			if !ok {
				s.parseErr = true
				return
			}
		} else {
			childConfig = map[string]any{}
		}

		child, err := s.registry.Instantiate(name, childConfig)
		if err != nil {
			s.parseErr = true
			return
		}

		s.stages = append(s.stages, sequenceStage{durationSeconds: duration, plugin: child, start: cursor})
		cursor += duration
	}
	s.total = cursor
}

// activeStage returns the index of the stage covering t, assuming t < total.
func (s *Sequence) activeStage(t float64) int {
	for i := len(s.stages) - 1; i >= 0; i-- {
		if s.stages[i].start <= t {
			return i
		}
	}
	return 0
}

func (s *Sequence) GetRate(elapsedSeconds float64, targetRPS float64) float64 {
	if s.parseErr || len(s.stages) == 0 {
		return clampNonNegative(targetRPS)
	}

	t := elapsedSeconds
	if t < s.total {
		i := s.activeStage(t)
		stage := s.stages[i]
		return clampNonNegative(stage.plugin.GetRate(t-stage.start, targetRPS))
	}

	switch s.postBehavior {
	case postBehaviorZero:
		return 0
	case postBehaviorRepeat:
		if s.total <= 0 {
			return clampNonNegative(targetRPS)
		}
		wrapped := mod(t, s.total)
		i := s.activeStage(wrapped)
		stage := s.stages[i]
		return clampNonNegative(stage.plugin.GetRate(wrapped-stage.start, targetRPS))
	default: // hold_last
		last := s.stages[len(s.stages)-1]
		return clampNonNegative(last.plugin.GetRate(t-last.start, targetRPS))
	}
}

func mod(a, b float64) float64 {
	m := a - b*float64(int(a/b))
	if m < 0 {
		m += b
	}
	return m
}

func (s *Sequence) Validate() bool {
	if s.parseErr {
		return false
	}
	if len(s.stages) == 0 {
		return false
	}
	for _, stage := range s.stages {
		if stage.durationSeconds <= 0 {
			return false
		}
		if !stage.plugin.Validate() {
			return false
		}
	}
	switch s.postBehavior {
	case postBehaviorHoldLast, postBehaviorZero, postBehaviorRepeat:
	default:
		return false
	}
	return true
}
