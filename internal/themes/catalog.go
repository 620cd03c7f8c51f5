// Package themes holds the read-only catalog that maps a product to the
// themes generated for it.
package themes

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

//go:embed themes.yaml
var defaultCatalog []byte

var ErrUnknownProduct = errors.New("unknown product type")

type Theme struct {
	Name            string   `mapstructure:"name"`
	Trigger         string   `mapstructure:"trigger"`
	ReferenceImages []string `mapstructure:"reference_images"`
	RequiresText    bool     `mapstructure:"requires_text"`
	MinOutputs      int      `mapstructure:"min_outputs"`
	// BatchSize caps the images requested per external call. Zero means
	// MinOutputs in a single call.
	BatchSize int `mapstructure:"batch_size"`
}

func (t Theme) Batch() int {
	if t.BatchSize <= 0 || t.BatchSize > t.MinOutputs {
		return t.MinOutputs
	}
	return t.BatchSize
}

// Product names the primary theme and the bonus-eligible themes of a product.
type Product struct {
	Primary string   `mapstructure:"primary"`
	Bonus   []string `mapstructure:"bonus"`
}

type Selection struct {
	Primary Theme
	Bonus   []Theme
}

// All returns the primary theme followed by the bonus themes.
func (s Selection) All() []Theme {
	return append([]Theme{s.Primary}, s.Bonus...)
}

type file struct {
	Themes   []Theme            `mapstructure:"themes"`
	Products map[string]Product `mapstructure:"products"`
}

type Catalog struct {
	themes   map[string]Theme
	products map[string]Product
}

// Load reads the catalog at path, or the embedded default catalog when path
// is empty.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(defaultCatalog)); err != nil {
			return nil, fmt.Errorf("failed to read default theme catalog: %w", err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read theme catalog %s: %w", path, err)
		}
	}

	var f file
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to decode theme catalog: %w", err)
	}
	return New(f.Themes, f.Products)
}

// New validates and builds a catalog.
func New(themes []Theme, products map[string]Product) (*Catalog, error) {
	c := &Catalog{
		themes:   make(map[string]Theme, len(themes)),
		products: make(map[string]Product, len(products)),
	}

	for _, t := range themes {
		if t.Name == "" {
			return nil, fmt.Errorf("theme with empty name")
		}
		if _, dup := c.themes[t.Name]; dup {
			return nil, fmt.Errorf("duplicate theme %q", t.Name)
		}
		if t.MinOutputs <= 0 {
			return nil, fmt.Errorf("theme %q: min_outputs must be positive", t.Name)
		}
		if t.BatchSize < 0 {
			return nil, fmt.Errorf("theme %q: batch_size must not be negative", t.Name)
		}
		c.themes[t.Name] = t
	}

	for name, p := range products {
		key := normalize(name)
		if _, ok := c.themes[p.Primary]; !ok {
			return nil, fmt.Errorf("product %q: unknown primary theme %q", name, p.Primary)
		}
		seen := map[string]bool{}
		for _, b := range p.Bonus {
			if _, ok := c.themes[b]; !ok {
				return nil, fmt.Errorf("product %q: unknown bonus theme %q", name, b)
			}
			if b == p.Primary {
				return nil, fmt.Errorf("product %q: theme %q is both primary and bonus", name, b)
			}
			if seen[b] {
				return nil, fmt.Errorf("product %q: bonus theme %q listed twice", name, b)
			}
			seen[b] = true
		}
		c.products[key] = p
	}

	return c, nil
}

func (c *Catalog) Resolve(productType string) (Selection, error) {
	p, ok := c.products[normalize(productType)]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productType)
	}
	sel := Selection{Primary: c.themes[p.Primary]}
	for _, b := range p.Bonus {
		sel.Bonus = append(sel.Bonus, c.themes[b])
	}
	return sel, nil
}

func (c *Catalog) Theme(name string) (Theme, bool) {
	t, ok := c.themes[name]
	return t, ok
}

func (c *Catalog) Products() []string {
	out := make([]string, 0, len(c.products))
	for name := range c.products {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(productType string) string {
	return strings.ToLower(strings.TrimSpace(productType))
}
