// Package catalog maps storefront product, addon and billing-cycle identifiers
// to the HostBill catalog and serves the HostBill product list to the storefront.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownProduct = errors.New("unknown product")
	ErrUnknownAddon   = errors.New("unknown addon")
	ErrUnknownCycle   = errors.New("unknown billing cycle")
)

// Mapping holds storefront ID -> HostBill ID tables.
type Mapping struct {
	Products map[string]string `yaml:"products"`
	Addons   map[string]string `yaml:"addons"`
	Cycles   map[string]string `yaml:"cycles"`
	// HostBill order pages whose products are listed.
	Categories []string `yaml:"categories"`

	productsByHB map[string]string
	addonsByHB   map[string]string
	cyclesByCode map[string]string
}

var defaultCycles = map[string]string{
	"monthly":      "m",
	"quarterly":    "q",
	"semiannually": "s",
	"annually":     "a",
	"biennially":   "b",
	"triennially":  "t",
}

// DefaultMapping is the CloudVPS sandbox catalog.
func DefaultMapping() *Mapping {
	m := &Mapping{
		Products: map[string]string{
			"vps-start":    "1",
			"vps-standard": "2",
			"vps-pro":      "3",
		},
		Addons: map[string]string{
			"backup":   "11",
			"extra-ip": "12",
			"managed":  "13",
		},
		Cycles:     copyMap(defaultCycles),
		Categories: []string{"1"},
	}
	if err := m.index(); err != nil {
		panic(err)
	}
	return m
}

// LoadMapping reads a YAML mapping file. An empty path yields DefaultMapping.
func LoadMapping(path string) (*Mapping, error) {
	if path == "" {
		return DefaultMapping(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog mapping: %w", err)
	}
	return ParseMapping(data)
}

func ParseMapping(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse catalog mapping: %w", err)
	}
	if len(m.Products) == 0 {
		return nil, fmt.Errorf("catalog mapping: no products")
	}
	if len(m.Cycles) == 0 {
		m.Cycles = copyMap(defaultCycles)
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Mapping) index() error {
	var err error
	if m.productsByHB, err = invert("product", m.Products); err != nil {
		return err
	}
	if m.addonsByHB, err = invert("addon", m.Addons); err != nil {
		return err
	}
	if m.cyclesByCode, err = invert("cycle", m.Cycles); err != nil {
		return err
	}
	for name, code := range m.Cycles {
		if !validCycle(code) {
			return fmt.Errorf("catalog mapping: cycle %q maps to unknown code %q", name, code)
		}
	}
	return nil
}

// Translate converts a storefront order into HostBill order parameters. The
// payment gateway module is left for the caller to fill in.
func (m *Mapping) Translate(req models.OrderRequest) (hostbill.OrderParams, error) {
	productID, ok := m.Products[req.ProductID]
	if !ok {
		return hostbill.OrderParams{}, fmt.Errorf("%w: %q", ErrUnknownProduct, req.ProductID)
	}
	cycle, err := m.Cycle(req.Cycle)
	if err != nil {
		return hostbill.OrderParams{}, err
	}
	params := hostbill.OrderParams{
		ClientID:  req.ClientID,
		ProductID: productID,
		Cycle:     cycle,
		Domain:    req.Hostname,
		PromoCode: req.PromoCode,
	}
	for _, a := range req.Addons {
		id, ok := m.Addons[a]
		if !ok {
			return hostbill.OrderParams{}, fmt.Errorf("%w: %q", ErrUnknownAddon, a)
		}
		params.Addons = append(params.Addons, id)
	}
	return params, nil
}

// Cycle resolves a storefront cycle name. HostBill codes are accepted as-is and
// an empty name means monthly.
func (m *Mapping) Cycle(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "monthly"
	}
	if code, ok := m.Cycles[name]; ok {
		return code, nil
	}
	if _, ok := m.cyclesByCode[name]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCycle, name)
}

func (m *Mapping) StorefrontProductID(hostbillID string) (string, bool) {
	id, ok := m.productsByHB[hostbillID]
	return id, ok
}

func (m *Mapping) StorefrontAddonID(hostbillID string) (string, bool) {
	id, ok := m.addonsByHB[hostbillID]
	return id, ok
}

func (m *Mapping) HostBillProductID(storefrontID string) (string, bool) {
	id, ok := m.Products[storefrontID]
	return id, ok
}

// CycleName returns the storefront name for a HostBill cycle code.
func (m *Mapping) CycleName(code string) string {
	if name, ok := m.cyclesByCode[code]; ok {
		return name
	}
	return code
}

// Entry is one row of the mapping, used for printing.
type Entry struct {
	Kind       string
	Storefront string
	HostBill   string
}

func (m *Mapping) Entries() []Entry {
	var out []Entry
	add := func(kind string, src map[string]string) {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Entry{Kind: kind, Storefront: k, HostBill: src[k]})
		}
	}
	add("product", m.Products)
	add("addon", m.Addons)
	add("cycle", m.Cycles)
	return out
}

func invert(kind string, src map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(src))
	for k, v := range src {
		if v == "" {
			return nil, fmt.Errorf("catalog mapping: %s %q has no HostBill ID", kind, k)
		}
		if prev, dup := out[v]; dup {
			return nil, fmt.Errorf("catalog mapping: %s %q and %q both map to %q", kind, prev, k, v)
		}
		out[v] = k
	}
	return out, nil
}

func validCycle(code string) bool {
	for _, c := range hostbill.CycleCodes {
		if c == code {
			return true
		}
	}
	return false
}

func copyMap(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
