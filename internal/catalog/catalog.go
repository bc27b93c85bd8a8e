// Package catalog holds the immutable part, grade and region lookups of the price feed.
// It is loaded once at start-up and injected wherever codes are needed.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllGrades is the grade code meaning "every grade of the part".
const AllGrades = "00"

//go:embed catalog.yaml
var defaultCatalog []byte

// Item describes one part and its feed codes.
type Item struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	CategoryCode string   `yaml:"category" json:"-"`
	ItemCode     string   `yaml:"item" json:"-"`
	KindCode     string   `yaml:"kind" json:"-"`
	ProductClass string   `yaml:"class" json:"-"`
	Grades       []string `yaml:"grades" json:"grades,omitempty"`
	OriginGrade  string   `yaml:"origin" json:"origin,omitempty"`
}

type Grade struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

type document struct {
	Unit             string            `yaml:"unit"`
	NationalRegion   string            `yaml:"national_region"`
	OnlineRegion     string            `yaml:"online_region"`
	AverageLabels    []string          `yaml:"average_labels"`
	HistoricalLabels []string          `yaml:"historical_labels"`
	OnlineMarkets    []string          `yaml:"online_markets"`
	Grades           []Grade           `yaml:"grades"`
	Items            []Item            `yaml:"items"`
	Aliases          map[string]string `yaml:"aliases"`
	Regions          map[string]string `yaml:"regions"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	unit       string
	national   string
	online     string
	average    map[string]struct{}
	historical map[string]struct{}
	markets    []string
	grades     map[string]Grade
	items      map[string]Item
	order      []string
	aliases    map[string]string
	regions    map[string]string
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse builds a Catalog from YAML.
func Parse(b []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		unit:       doc.Unit,
		national:   doc.NationalRegion,
		online:     doc.OnlineRegion,
		average:    toSet(doc.AverageLabels),
		historical: toSet(doc.HistoricalLabels),
		markets:    doc.OnlineMarkets,
		grades:     make(map[string]Grade, len(doc.Grades)),
		items:      make(map[string]Item, len(doc.Items)),
		aliases:    doc.Aliases,
		regions:    doc.Regions,
	}
	if c.unit == "" {
		c.unit = "100g"
	}
	for _, g := range doc.Grades {
		c.grades[g.Code] = g
	}
	for _, it := range doc.Items {
		if it.Key == "" || it.ItemCode == "" || it.KindCode == "" {
			return nil, fmt.Errorf("catalog item %q: key, item and kind codes are required", it.Key)
		}
		for _, g := range it.Grades {
			if _, ok := c.grades[g]; !ok {
				return nil, fmt.Errorf("catalog item %s: unknown grade %s", it.Key, g)
			}
		}
		c.items[it.Key] = it
		c.order = append(c.order, it.Key)
	}
	for alias, target := range c.aliases {
		if _, ok := c.items[target]; !ok {
			return nil, fmt.Errorf("catalog alias %s: unknown part %s", alias, target)
		}
	}
	if _, ok := c.regions[c.national]; !ok {
		return nil, fmt.Errorf("catalog: national region %q has no code", c.national)
	}
	return c, nil
}

func toSet(vs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		m[strings.TrimSpace(v)] = struct{}{}
	}
	return m
}

// Item resolves a part key or one of its aliases.
func (c *Catalog) Item(key string) (Item, bool) {
	key = strings.TrimSpace(key)
	if it, ok := c.items[key]; ok {
		return it, true
	}
	if target, ok := c.aliases[key]; ok {
		it, ok := c.items[target]
		return it, ok
	}
	return Item{}, false
}

// Items lists parts in catalog order.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

func (c *Catalog) Grade(code string) (Grade, bool) {
	g, ok := c.grades[code]
	return g, ok
}

// GradeName returns the display name of code, or code itself when unknown.
func (c *Catalog) GradeName(code string) string {
	if g, ok := c.grades[code]; ok {
		return g.Name
	}
	return code
}

// ValidGrade reports whether grade may be requested for it.
func (c *Catalog) ValidGrade(it Item, grade string) bool {
	if grade == AllGrades {
		return true
	}
	if grade == it.OriginGrade && grade != "" {
		return true
	}
	for _, g := range it.Grades {
		if g == grade {
			return true
		}
	}
	return false
}

// FanOutGrades returns the grades to aggregate when grade means "all" on a graded part.
// It returns nil when a single feed query answers the request.
func (c *Catalog) FanOutGrades(it Item, grade string) []string {
	if grade != AllGrades || len(it.Grades) < 2 {
		return nil
	}
	out := append([]string(nil), it.Grades...)
	sort.Strings(out)
	return out
}

// NormalizeGrade trims code and zero-pads single-digit codes, so "1" and "01" compare equal.
func NormalizeGrade(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 1 && code[0] >= '0' && code[0] <= '9' {
		return "0" + code
	}
	return code
}

// RankCode is the feed's product rank parameter for grade on it.
func (c *Catalog) RankCode(it Item, grade string) string {
	switch {
	case it.OriginGrade != "":
		return it.OriginGrade
	case len(it.Grades) == 0, grade == AllGrades:
		return ""
	default:
		return grade
	}
}

// RegionCode maps a region name to the feed's county code.
func (c *Catalog) RegionCode(name string) (string, bool) {
	code, ok := c.regions[strings.TrimSpace(name)]
	return code, ok
}

// Regions lists region names sorted by county code.
func (c *Catalog) Regions() []string {
	out := make([]string, 0, len(c.regions))
	for name := range c.regions {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return c.regions[out[i]] < c.regions[out[j]]
	})
	return out
}

// NormalizeRegion maps the empty region to the national one.
func (c *Catalog) NormalizeRegion(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		return c.national
	}
	return region
}

func (c *Catalog) Unit() string { return c.unit }

func (c *Catalog) IsNational(region string) bool { return region == c.national }

func (c *Catalog) IsOnline(region string) bool { return region == c.online }

// IsAverageLabel reports whether a feed region label is an average/national sentinel.
func (c *Catalog) IsAverageLabel(label string) bool {
	_, ok := c.average[strings.TrimSpace(label)]
	return ok
}

// IsHistoricalLabel reports whether a feed row is a multi-year reference, not an observation.
func (c *Catalog) IsHistoricalLabel(label string) bool {
	_, ok := c.historical[strings.TrimSpace(label)]
	return ok
}

// IsOnlineMarket reports whether a market label names an online channel.
func (c *Catalog) IsOnlineMarket(label string) bool {
	for _, m := range c.markets {
		if m != "" && strings.Contains(label, m) {
			return true
		}
	}
	return false
}
