package parser

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"finextract/internal/domain"
)

//go:embed catalog.toml
var catalogTOML []byte

// CatalogField is one target field and the labels it appears under.
type CatalogField struct {
	Name     string   `toml:"name"`
	Synonyms []string `toml:"synonyms"`
}

// Catalog lists the fields the extractors look for, per statement.
type Catalog struct {
	Keywords        []string       `toml:"keywords"`
	IncomeStatement []CatalogField `toml:"income_statement"`
	BalanceSheet    []CatalogField `toml:"balance_sheet"`
	Cashflow        []CatalogField `toml:"cashflow"`
	KeyMetrics      []CatalogField `toml:"key_metrics"`
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
)

// DefaultCatalog returns the embedded field catalog.
func DefaultCatalog() *Catalog {
	catalogOnce.Do(func() {
		c, err := ParseCatalog(catalogTOML)
		if err != nil {
			panic(fmt.Sprintf("parser: embedded catalog: %v", err))
		}
		catalog = c
	})
	return catalog
}

// ParseCatalog decodes a TOML field catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	for i := range c.Keywords {
		c.Keywords[i] = strings.ToLower(c.Keywords[i])
	}
	return &c, nil
}

// Fields returns the catalog entries for a statement type.
func (c *Catalog) Fields(st domain.StatementType) []CatalogField {
	switch st {
	case domain.StatementIncome:
		return c.IncomeStatement
	case domain.StatementBalance:
		return c.BalanceSheet
	case domain.StatementCashflow:
		return c.Cashflow
	case domain.StatementMetrics:
		return c.KeyMetrics
	}
	return nil
}

// describe renders one statement's fields for a prompt, e.g.
// `"Total Revenue" (also: Revenue, Net Sales)`.
func (c *Catalog) describe(st domain.StatementType) string {
	var sb strings.Builder
	for _, f := range c.Fields(st) {
		fmt.Fprintf(&sb, "  - %q", f.Name)
		if len(f.Synonyms) > 0 {
			sb.WriteString(" (also: " + strings.Join(f.Synonyms, ", ") + ")")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
