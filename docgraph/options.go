package docgraph

// PortOptionsProvider is implemented by node types whose valid literal
// values for a given port are enumerable at edit time rather than free
// text — for example a model-selection dropdown backed by the gateway's
// backend registry. It is pure metadata: it never participates in
// demand or validation, only in editor-facing discovery.
type PortOptionsProvider interface {
	// PortOptions returns the discoverable literal choices for portID on
	// a node carrying the given data, or ok=false if the port has no
	// enumerable options (e.g. free-text input).
	PortOptions(data map[string]any, portID string) (options []PortOption, ok bool)
}

// PortOption is one discoverable literal choice for a port.
type PortOption struct {
	Value any
	Label string
}

// WithOptionsProvider registers provider for typ on r, building r's
// provider map lazily on first use.
func (r *Registry) WithOptionsProvider(typ string, provider PortOptionsProvider) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.optionProviders == nil {
		r.optionProviders = make(map[string]PortOptionsProvider)
	}
	r.optionProviders[typ] = provider
	return r
}

// OptionsProvider returns the PortOptionsProvider registered for typ, if
// any.
func (r *Registry) OptionsProvider(typ string) (PortOptionsProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.optionProviders[typ]
	return p, ok
}
