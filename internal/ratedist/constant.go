package ratedist

// Constant returns a fixed rate, or the run's target RPS when no rate is
// configured.
type Constant struct {
	rps      float64
	hasRPS   bool
	parseErr bool
}

func newConstant() Shape { return &Constant{} }

func (c *Constant) Metadata() Metadata {
	return Metadata{
		Name:        "constant",
		Version:     "1.0",
		Description: "Fixed request rate, falling back to the run's target RPS.",
		Parameters: map[string]Parameter{
			"rps": {Type: "float", Description: "Fixed rate; when unset, target RPS is used.", Required: false},
		},
	}
}

func (c *Constant) Initialize(config map[string]any) {
	if raw, ok := config["rps"]; ok {
		v, ok := parseFloat(raw)
		if !ok {
			c.parseErr = true
			return
		}
		c.rps = v
		c.hasRPS = true
	}
}

func (c *Constant) Validate() bool {
	if c.parseErr {
		return false
	}
	if c.hasRPS && c.rps <= 0 {
		return false
	}
	return true
}

func (c *Constant) GetRate(elapsedSeconds float64, targetRPS float64) float64 {
	if c.parseErr {
		return clampNonNegative(targetRPS)
	}
	if c.hasRPS && c.rps > 0 {
		return c.rps
	}
	return clampNonNegative(targetRPS)
}
