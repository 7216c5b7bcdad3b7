package entity

import "sync/atomic"

// Current is a Provider whose metadata can be replaced while executors use
// it. Each call sees one complete Registry.
type Current struct {
	reg atomic.Pointer[Registry]
}

var _ Provider = (*Current)(nil)

func NewCurrent(reg *Registry) *Current {
	c := &Current{}
	c.reg.Store(reg)
	return c
}

// Registry returns the metadata in use.
func (c *Current) Registry() *Registry { return c.reg.Load() }

// Store replaces the metadata.
func (c *Current) Store(reg *Registry) { c.reg.Store(reg) }

func (c *Current) Definitions() []*Definition { return c.reg.Load().Definitions() }

func (c *Current) Definition(name string) (*Definition, error) {
	return c.reg.Load().Definition(name)
}
