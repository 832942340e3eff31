package ratedist

type mixComponent struct {
	plugin   Shape
	weight   float64
	override *float64
}

// Mix is a higher-order shape: a weighted sum of child shapes, each
// evaluated against its own effective target RPS.
type Mix struct {
	registry         *Registry
	components       []mixComponent
	normalizedWeights []float64
	mixTargetRPS     *float64
	parseErr         bool
}

func newMix(r *Registry) Shape { return &Mix{registry: r} }

func (m *Mix) Metadata() Metadata {
	return Metadata{
		Name:        "mix",
		Version:     "1.0",
		Description: "Weighted sum of multiple rate shapes.",
		Parameters: map[string]Parameter{
			"components":  {Type: "str", Description: "JSON array of {weight, distribution{name, config}}.", Required: true},
			"target_rps":  {Type: "float", Description: "Default target RPS for all components.", Required: false},
		},
	}
}

func (m *Mix) Initialize(config map[string]any) {
	m.parseErr = false
	m.components = nil
	m.normalizedWeights = nil
	m.mixTargetRPS = nil

	if raw, ok := config["target_rps"]; ok && raw != nil {
		v, ok := parseFloat(raw)
		if !ok {
			m.parseErr = true
			return
		}
		m.mixTargetRPS = &v
	}

	raw, present := config["components"]
	if !present || raw == nil {
		return
	}
	items, ok := parseJSONOrList(raw)
	if !ok {
		m.parseErr = true
		return
	}

	weights := make([]float64, 0, len(items))
	for _, item := range items {
		comp, ok := item.(map[string]any)
		if !ok {
			m.parseErr = true
			return
		}
		weight, ok := parseFloat(comp["weight"])
		if !ok {
			m.parseErr = true
			return
		}
		distRaw, ok := comp["distribution"].(map[string]any)
		if !ok {
			m.parseErr = true
			return
		}
		name, ok := distRaw["name"].(string)
		if !ok || name == "" {
			m.parseErr = true
			return
		}
		var childConfig map[string]any
		if cfgRaw, present := distRaw["config"]; present && cfgRaw != nil {
			childConfig, ok = cfgRaw.(map[string]any)
			if !ok {
				m.parseErr = true
				return
			}
		} else {
			childConfig = map[string]any{}
		}

		var override *float64
		if tr, present := childConfig["target_rps"]; present && tr != nil {
			v, ok := parseFloat(tr)
			if !ok {
				m.parseErr = true
				return
			}
			override = &v
		}

		child, err := m.registry.Instantiate(name, childConfig)
		if err != nil {
			m.parseErr = true
			return
		}

		m.components = append(m.components, mixComponent{plugin: child, weight: weight, override: override})
		weights = append(weights, weight)
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return
	}
	m.normalizedWeights = make([]float64, len(weights))
	for i, w := range weights {
		m.normalizedWeights[i] = w / total
	}
}

func (m *Mix) effectiveTarget(override *float64, targetRPS float64) float64 {
	if override != nil {
		return *override
	}
	if m.mixTargetRPS != nil {
		return *m.mixTargetRPS
	}
	return targetRPS
}

func (m *Mix) GetRate(elapsedSeconds float64, targetRPS float64) float64 {
	if m.parseErr || len(m.components) == 0 || len(m.normalizedWeights) == 0 {
		return clampNonNegative(targetRPS)
	}
	var totalWeight float64
	for _, w := range m.normalizedWeights {
		totalWeight += w
	}
	if totalWeight <= 0 {
		return clampNonNegative(targetRPS)
	}
	var mixed float64
	for i, comp := range m.components {
		effective := m.effectiveTarget(comp.override, targetRPS)
		mixed += m.normalizedWeights[i] * comp.plugin.GetRate(elapsedSeconds, effective)
	}
	return clampNonNegative(mixed)
}

func (m *Mix) Validate() bool {
	if m.parseErr {
		return false
	}
	if len(m.components) == 0 {
		return false
	}
	if m.mixTargetRPS != nil && *m.mixTargetRPS <= 0 {
		return false
	}
	for _, comp := range m.components {
		if comp.weight <= 0 {
			return false
		}
		if comp.override != nil && *comp.override <= 0 {
			return false
		}
		if !comp.plugin.Validate() {
			return false
		}
	}
	if len(m.normalizedWeights) == 0 {
		return false
	}
	var total float64
	for _, w := range m.normalizedWeights {
		total += w
	}
	return total > 0
}
