package triggers

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// PatternDef is one weighted trigger as written in a catalog file
type PatternDef struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
	Literal bool    `yaml:"literal,omitempty"` // Match Pattern as a plain substring
}

// CategoryDef is an order category with its triggers
type CategoryDef struct {
	Name     string       `yaml:"name"`
	Patterns []PatternDef `yaml:"patterns"`
}

// Definition is the uncompiled catalog. Category order is significant: on equal
// scores the category declared first wins.
type Definition struct {
	Categories []CategoryDef `yaml:"categories"`
	Exclusions []string      `yaml:"exclusions"`
}

// Pattern is a compiled weighted trigger
type Pattern struct {
	Name   string
	Source string
	Weight float64
	re     *regexp.Regexp
}

// Match reports whether the pattern occurs in normalized text
func (p Pattern) Match(text string) bool {
	return p.re.MatchString(text)
}

// Category is a compiled category
type Category struct {
	Name     string
	Patterns []Pattern
}

// Exclusion is a compiled exclusion pattern shared by all categories
type Exclusion struct {
	Source string
	re     *regexp.Regexp
}

// Match reports whether the exclusion occurs in normalized text
func (e Exclusion) Match(text string) bool {
	return e.re.MatchString(text)
}

// Catalog is the immutable, compiled trigger set
type Catalog struct {
	categories []Category
	exclusions []Exclusion
	index      map[string]int
}

// Compile validates def and compiles every pattern. Any malformed entry fails the whole catalog.
func Compile(def Definition) (*Catalog, error) {
	if len(def.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}

	c := &Catalog{
		categories: make([]Category, 0, len(def.Categories)),
		index:      make(map[string]int, len(def.Categories)),
	}

	for _, cd := range def.Categories {
		name := strings.TrimSpace(cd.Name)
		if name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		if _, dup := c.index[strings.ToLower(name)]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		if len(cd.Patterns) == 0 {
			return nil, fmt.Errorf("category %q has no patterns", name)
		}

		cat := Category{Name: name, Patterns: make([]Pattern, 0, len(cd.Patterns))}
		for i, pd := range cd.Patterns {
			p, err := compilePattern(pd)
			if err != nil {
				return nil, fmt.Errorf("category %q pattern #%d: %w", name, i+1, err)
			}
			cat.Patterns = append(cat.Patterns, p)
		}

		c.index[strings.ToLower(name)] = len(c.categories)
		c.categories = append(c.categories, cat)
	}

	for i, src := range def.Exclusions {
		if strings.TrimSpace(src) == "" {
			return nil, fmt.Errorf("exclusion #%d is empty", i+1)
		}
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			return nil, fmt.Errorf("exclusion #%d: %w", i+1, err)
		}
		c.exclusions = append(c.exclusions, Exclusion{Source: src, re: re})
	}

	return c, nil
}

func compilePattern(pd PatternDef) (Pattern, error) {
	if strings.TrimSpace(pd.Pattern) == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	if pd.Weight <= 0 || pd.Weight > 1 {
		return Pattern{}, fmt.Errorf("weight must be in (0, 1], got %v", pd.Weight)
	}

	expr := pd.Pattern
	if pd.Literal {
		expr = regexp.QuoteMeta(strings.ToLower(expr))
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return Pattern{}, err
	}

	name := pd.Name
	if name == "" {
		name = pd.Pattern
	}
	return Pattern{Name: name, Source: pd.Pattern, Weight: pd.Weight, re: re}, nil
}

// Categories returns a copy of the categories in declaration order
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Patterns: slices.Clone(cat.Patterns)}
	}
	return out
}

// Exclusions returns a copy of the shared exclusion set
func (c *Catalog) Exclusions() []Exclusion {
	return slices.Clone(c.exclusions)
}

// Canonical returns the declared spelling of a category name, matched case-insensitively
func (c *Catalog) Canonical(name string) (string, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return c.categories[i].Name, true
}

// Names returns category names in declaration order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.Name
	}
	return names
}
