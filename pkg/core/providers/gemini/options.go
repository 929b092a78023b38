package gemini

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the analysis model.
// Default: gemini-2.0-flash
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithTemperature sets the sampling temperature. The analysis prompt
// asks for strict JSON, so low values parse more reliably.
func WithTemperature(t float32) Option {
	return func(p *Provider) {
		p.temperature = &t
	}
}
