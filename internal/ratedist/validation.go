package ratedist

import "fmt"

// NormalizeConfig JSON-decodes the "components"/"stages" list field in
// place when it arrives as a JSON string rather than a structured list, so
// downstream validation and Instantiate always see a []any.
func NormalizeConfig(name string, config map[string]any) (map[string]any, error) {
	field := ""
	switch name {
	case "mix":
		field = "components"
	case "sequence":
		field = "stages"
	default:
		return config, nil
	}

	raw, present := config[field]
	if !present {
		return config, nil
	}
	items, ok := parseJSONOrList(raw)
	if !ok {
		return nil, fmt.Errorf("%s must be a JSON array or list", field)
	}
	config[field] = items
	return config, nil
}

// ValidateConfig instantiates and validates a shape config, returning a
// flat list of path-qualified error strings instead of raising.
func ValidateConfig(r *Registry, name string, config map[string]any, path string) []string {
	factory := r.Get(name)
	if factory == nil {
		return []string{fmt.Sprintf("%s.name '%s' not found", path, name)}
	}

	var errs []string
	switch name {
	case "mix":
		errs = append(errs, validateMixConfig(config)...)
	case "sequence":
		errs = append(errs, validateSequenceConfig(config)...)
	}
	if len(errs) > 0 {
		return errs
	}

	instance := factory()
	instance.Initialize(config)
	if !instance.Validate() {
		errs = append(errs, fmt.Sprintf("%s validation failed", path))
	}
	return errs
}

func isPositiveNumber(v any) bool {
	f, ok := parseFloat(v)
	return ok && f > 0
}

func distributionErrors(container map[string]any, index int, parentField string) []string {
	distRaw, ok := container["distribution"].(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("%s[%d].distribution must be an object", parentField, index)}
	}
	name, ok := distRaw["name"].(string)
	if !ok || name == "" {
		return []string{fmt.Sprintf("%s[%d].distribution.name is required", parentField, index)}
	}
	var childConfig map[string]any
	if cfgRaw, present := distRaw["config"]; present && cfgRaw != nil {
		childConfig, ok = cfgRaw.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s[%d].distribution.config must be an object", parentField, index)}
		}
	} else {
		childConfig = map[string]any{}
	}
	return ValidateConfig(Default(), name, childConfig, fmt.Sprintf("%s[%d].distribution", parentField, index))
}

func validateMixConfig(config map[string]any) []string {
	raw, ok := config["components"].([]any)
	if !ok || len(raw) == 0 {
		return []string{"components must be a non-empty list"}
	}
	var errs []string
	for i, item := range raw {
		comp, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("components[%d] must be an object", i))
			continue
		}
		if !isPositiveNumber(comp["weight"]) {
			errs = append(errs, fmt.Sprintf("components[%d].weight must be > 0", i))
		}
		errs = append(errs, distributionErrors(comp, i, "components")...)
	}
	return errs
}

func validateSequenceConfig(config map[string]any) []string {
	raw, ok := config["stages"].([]any)
	if !ok || len(raw) == 0 {
		return []string{"stages must be a non-empty list"}
	}
	var errs []string
	for i, item := range raw {
		stage, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("stages[%d] must be an object", i))
			continue
		}
		if !isPositiveNumber(stage["duration_seconds"]) {
			errs = append(errs, fmt.Sprintf("stages[%d].duration_seconds must be > 0", i))
		}
		errs = append(errs, distributionErrors(stage, i, "stages")...)
	}
	if pb, present := config["post_behavior"]; present && pb != nil {
		name, _ := pb.(string)
		switch name {
		case postBehaviorHoldLast, postBehaviorZero, postBehaviorRepeat:
		default:
			errs = append(errs, "post_behavior must be one of: hold_last, zero, repeat")
		}
	}
	return errs
}
