package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Product is a purchasable item. Immutable after load.
type Product struct {
	Key         string `json:"key" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Price       Amount `json:"price" validate:"gt=0"`
	UnlockURL   string `json:"unlock_url" validate:"required,url"`
	Description string `json:"description"`
}

// ErrUnknownDefault is returned when the default key is not in the product list.
var ErrUnknownDefault = errors.New("default product not in catalog")

// Catalog maps product keys to products with a fallback default.
type Catalog struct {
	products   map[string]Product
	order      []string
	defaultKey string
}

// New validates products and builds a catalog. defaultKey must be one of them.
func New(products []Product, defaultKey string) (*Catalog, error) {
	v := validatorv10.New()
	c := &Catalog{
		products:   make(map[string]Product, len(products)),
		defaultKey: defaultKey,
	}
	for _, p := range products {
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("product %q: %w", p.Key, err)
		}
		if _, dup := c.products[p.Key]; dup {
			return nil, fmt.Errorf("product %q: duplicate key", p.Key)
		}
		c.products[p.Key] = p
		c.order = append(c.order, p.Key)
	}
	if _, ok := c.products[defaultKey]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefault, defaultKey)
	}
	return c, nil
}

// Load reads a JSON array of products from path. An empty path yields a catalog holding
// only fallback, which is also the default.
func Load(path, defaultKey string, fallback Product) (*Catalog, error) {
	if path == "" {
		fallback.Key = defaultKey
		return New([]Product{fallback}, defaultKey)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(products, defaultKey)
}

// DefaultKey returns the configured fallback key.
func (c *Catalog) DefaultKey() string { return c.defaultKey }

// Lookup returns the product for key, if present.
func (c *Catalog) Lookup(key string) (Product, bool) {
	p, ok := c.products[key]
	return p, ok
}

// Resolve returns the product for key, or the default product when key is empty or unknown.
func (c *Catalog) Resolve(key string) Product {
	if p, ok := c.products[key]; ok {
		return p
	}
	return c.products[c.defaultKey]
}

// ResolveKey returns the canonical key for key, applying the default fallback.
func (c *Catalog) ResolveKey(key string) string {
	return c.Resolve(key).Key
}

// Products returns all products in load order.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.products[k])
	}
	return out
}
