package ratedist

import "math/rand"

// Poisson jitters a mean rate with gaussian noise. This is deliberately not
// a true Poisson inter-arrival process: the contract preserves mean and
// bounded variance, not the sampling method.
type Poisson struct {
	lambdaParam  float64
	hasLambda    bool
	varianceScale float64
	parseErr     bool
}

func newPoisson() Shape { return &Poisson{varianceScale: 1} }

func (p *Poisson) Metadata() Metadata {
	return Metadata{
		Name:        "poisson",
		Version:     "1.0",
		Description: "Gaussian-jittered rate around a mean (lambda_param or target RPS).",
		Parameters: map[string]Parameter{
			"lambda_param":   {Type: "float", Description: "Mean rate; defaults to target RPS.", Required: false},
			"variance_scale": {Type: "float", Default: 1, Description: "Scales the noise stddev.", Required: false},
		},
	}
}

func (p *Poisson) Initialize(config map[string]any) {
	p.varianceScale = 1
	if raw, ok := config["lambda_param"]; ok {
		v, ok := parseFloat(raw)
		if !ok {
			p.parseErr = true
			return
		}
		p.lambdaParam = v
		p.hasLambda = true
	}
	if raw, ok := config["variance_scale"]; ok {
		v, ok := parseFloat(raw)
		if !ok {
			p.parseErr = true
			return
		}
		p.varianceScale = v
	}
}

func (p *Poisson) Validate() bool {
	if p.parseErr {
		return false
	}
	if p.hasLambda && p.lambdaParam <= 0 {
		return false
	}
	return p.varianceScale > 0
}

func (p *Poisson) GetRate(elapsedSeconds float64, targetRPS float64) float64 {
	if p.parseErr || p.varianceScale <= 0 {
		return clampNonNegative(targetRPS)
	}
	mu := targetRPS
	if p.hasLambda {
		mu = p.lambdaParam
	}
	noise := rand.NormFloat64() * (0.1 * p.varianceScale)
	return clampNonNegative(mu * (1 + noise))
}
