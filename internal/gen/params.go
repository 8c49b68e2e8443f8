package gen

import (
	"fmt"
	"sync"

	"github.com/nikgalvaz/camacq/internal/driver"
)

// paramTable is a fake PVCAM-style ParamInfoMap: a fixed set of named
// settings the fake driver exposes through driver.Params.
type paramTable struct {
	mu     sync.Mutex
	values map[string]driver.ParamValue
}

func newParamTable() *paramTable {
	return &paramTable{
		values: map[string]driver.ParamValue{
			"exposure_us":  {Int: 10000},
			"binning":      {Int: 1},
			"gain":         {Float: 1.0},
			"trigger_mode": {String: "internal"},
		},
	}
}

func (p *paramTable) Get(name string) (driver.ParamValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	if !ok {
		return driver.ParamValue{}, fmt.Errorf("gen: unknown parameter %q", name)
	}
	return v, nil
}

func (p *paramTable) Set(name string, value driver.ParamValue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[name]; !ok {
		return fmt.Errorf("gen: unknown parameter %q", name)
	}
	p.values[name] = value
	return nil
}

func (p *paramTable) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.values))
	for n := range p.values {
		names = append(names, n)
	}
	return names
}

var _ driver.Params = (*paramTable)(nil)
