package connector

import (
	"fmt"
	"strings"
)

// Registry maps credential mode/exchange to a backend.
type Registry struct {
	byName map[string]Connector
	demo   Connector
}

// NewRegistry builds a registry. The demo connector is selected whenever
// credentials carry ModeDemo, regardless of exchange name.
func NewRegistry(demo Connector, live ...Connector) *Registry {
	r := &Registry{byName: make(map[string]Connector), demo: demo}
	for _, c := range live {
		r.byName[strings.ToLower(c.Name())] = c
	}
	return r
}

// ForCredentials selects the backend for the given credentials.
func (r *Registry) ForCredentials(creds Credentials) (Connector, error) {
	if creds.Mode == ModeDemo {
		return r.demo, nil
	}
	c, ok := r.byName[strings.ToLower(creds.Exchange)]
	if !ok {
		return nil, fmt.Errorf("no connector for exchange %q", creds.Exchange)
	}
	return c, nil
}
