// Package locations holds the curated destination catalog offered for exploration.
package locations

import (
	_ "embed"
	"fmt"
	"math/rand/v2"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Destination is a curated place shown as a card alongside its weather.
type Destination struct {
	Name            string `yaml:"name" json:"name"`
	Country         string `yaml:"country" json:"country"`
	Continent       string `yaml:"continent" json:"continent"`
	Description     string `yaml:"description" json:"description"`
	BestTimeToVisit string `yaml:"bestTimeToVisit" json:"bestTimeToVisit,omitempty"`
}

// Catalog is an immutable list of destinations.
type Catalog struct {
	destinations []Destination
}

// Default loads the embedded catalog. It panics if the embedded file is malformed.
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a YAML list of destinations.
func Parse(raw []byte) (*Catalog, error) {
	var ds []Destination
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, d := range ds {
		if d.Name == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no name", i)
		}
	}
	return &Catalog{destinations: ds}, nil
}

// Len returns the number of destinations.
func (c *Catalog) Len() int {
	return len(c.destinations)
}

// All returns a copy of every destination in catalog order.
func (c *Catalog) All() []Destination {
	out := make([]Destination, len(c.destinations))
	copy(out, c.destinations)
	return out
}

// Names returns the destination names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.destinations))
	for i, d := range c.destinations {
		out[i] = d.Name
	}
	return out
}

// Random returns n distinct destinations in random order. n is capped at Len.
func (c *Catalog) Random(n int) []Destination {
	return c.RandomFrom(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), n)
}

// RandomFrom is Random with a caller-supplied source.
func (c *Catalog) RandomFrom(r *rand.Rand, n int) []Destination {
	if n > len(c.destinations) {
		n = len(c.destinations)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Destination, 0, n)
	for _, i := range r.Perm(len(c.destinations))[:n] {
		out = append(out, c.destinations[i])
	}
	return out
}
