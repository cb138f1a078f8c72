package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Currency is the unit offering prices are expressed in.
const Currency = "XTR"

var ErrNotFound = errors.New("offering not found")

// Offering is a purchasable XP bundle.
type Offering struct {
	ID          int64  `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	XP          int64  `yaml:"xp" json:"xp"`
	Price       int64  `yaml:"price" json:"price"`
	Description string `yaml:"description" json:"description"`
	Featured    bool   `yaml:"featured" json:"featured"`
}

type catalogFile struct {
	Offerings []Offering `yaml:"offerings"`
}

// Catalog is an ordered, read-only list of offerings.
type Catalog struct {
	offerings []Offering
	byID      map[int64]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for package-level initialization and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a YAML catalog and validates every offering.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return New(file.Offerings...)
}

// New builds a catalog from offerings, keeping their order.
func New(offerings ...Offering) (*Catalog, error) {
	if len(offerings) == 0 {
		return nil, errors.New("catalog has no offerings")
	}

	c := &Catalog{
		offerings: make([]Offering, len(offerings)),
		byID:      make(map[int64]int, len(offerings)),
	}
	for i, o := range offerings {
		switch {
		case o.ID <= 0:
			return nil, fmt.Errorf("offering %d: id must be positive", i)
		case o.Name == "":
			return nil, fmt.Errorf("offering %d: name is required", o.ID)
		case o.XP <= 0:
			return nil, fmt.Errorf("offering %d: xp must be positive", o.ID)
		case o.Price <= 0:
			return nil, fmt.Errorf("offering %d: price must be positive", o.ID)
		}
		if _, dup := c.byID[o.ID]; dup {
			return nil, fmt.Errorf("offering %d: duplicate id", o.ID)
		}
		c.offerings[i] = o
		c.byID[o.ID] = i
	}
	return c, nil
}

// All returns a copy of the offerings in display order.
func (c *Catalog) All() []Offering {
	out := make([]Offering, len(c.offerings))
	copy(out, c.offerings)
	return out
}

func (c *Catalog) Len() int {
	return len(c.offerings)
}

// Find looks an offering up by id.
func (c *Catalog) Find(id int64) (Offering, error) {
	i, ok := c.byID[id]
	if !ok {
		return Offering{}, fmt.Errorf("offering %d: %w", id, ErrNotFound)
	}
	return c.offerings[i], nil
}
