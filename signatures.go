package threatlens

import (
	"fmt"
	"os"
	"regexp"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Category classifies a detected or reported security event. The set is
// closed: the persistence layer rejects anything else.
type Category string

const (
	CategorySQLInjection    Category = "SQL_INJECTION"
	CategoryXSS             Category = "XSS"
	CategoryBruteForce      Category = "BRUTE_FORCE"
	CategorySuspiciousIP    Category = "SUSPICIOUS_IP"
	CategoryScannerActivity Category = "SCANNER_ACTIVITY"
	CategoryOther           Category = "OTHER"
)

// ValidCategory reports whether c belongs to the closed category set.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySQLInjection, CategoryXSS, CategoryBruteForce,
		CategorySuspiciousIP, CategoryScannerActivity, CategoryOther:
		return true
	}
	return false
}

// Signature is one compiled pattern recognizing a known attack shape.
type Signature struct {
	Name  string
	Regex *regexp.Regexp
}

// CategoryRules pairs a category with its ordered pattern list.
type CategoryRules struct {
	Category   Category
	Signatures []Signature
}

// Catalog is an immutable signature table. The inspection list is
// evaluated in order by Classify; the scanner list is consulted only by
// the user-agent monitor. Build a new Catalog instead of mutating one.
type Catalog struct {
	inspection []CategoryRules
	scanner    []Signature
}

// NewCatalog builds a catalog from explicit rule sets. Tests use this to
// substitute synthetic signatures.
func NewCatalog(inspection []CategoryRules, scanner []Signature) *Catalog {
	return &Catalog{inspection: inspection, scanner: scanner}
}

// DefaultCatalog returns the built-in signature set. All patterns are
// case-insensitive even though the normalizer lowercases its output.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		[]CategoryRules{
			{
				Category: CategorySQLInjection,
				Signatures: []Signature{
					{Name: "select_from", Regex: regexp.MustCompile(`(?i)select.+from`)},
					{Name: "union_select", Regex: regexp.MustCompile(`(?i)union.+select`)},
					{Name: "sql_comment", Regex: regexp.MustCompile(`--`)},
					{Name: "boolean_tautology", Regex: regexp.MustCompile(`(?i)\b(and|or)\b\s+['"]?1['"]?\s*=\s*['"]?1['"]?`)},
					{Name: "xp_cmdshell", Regex: regexp.MustCompile(`(?i)xp_cmdshell`)},
				},
			},
			{
				Category: CategoryXSS,
				Signatures: []Signature{
					{Name: "script_tag", Regex: regexp.MustCompile(`(?i)<script\b[^>]*>(.*?)</script>`)},
					{Name: "onerror_handler", Regex: regexp.MustCompile(`(?i)onerror`)},
					{Name: "onload_handler", Regex: regexp.MustCompile(`(?i)onload`)},
					{Name: "alert_call", Regex: regexp.MustCompile(`(?i)alert\s*\(`)},
					{Name: "javascript_uri", Regex: regexp.MustCompile(`(?i)javascript:`)},
				},
			},
		},
		[]Signature{
			{Name: "nessus", Regex: regexp.MustCompile(`(?i)nessus`)},
			{Name: "acunetix", Regex: regexp.MustCompile(`(?i)acunetix`)},
			{Name: "dirbuster", Regex: regexp.MustCompile(`(?i)dirbuster`)},
			{Name: "nikto", Regex: regexp.MustCompile(`(?i)nikto`)},
			{Name: "sqlmap", Regex: regexp.MustCompile(`(?i)sqlmap`)},
		},
	)
}

// MatchScanner checks a user-agent string against the scanner signature
// list and returns the name of the first matching signature.
func (c *Catalog) MatchScanner(ua string) (string, bool) {
	for _, sig := range c.scanner {
		if sig.Regex.MatchString(ua) {
			return sig.Name, true
		}
	}
	return "", false
}

// catalogFile is the on-disk YAML shape for a signature catalog.
type catalogFile struct {
	Inspection []struct {
		Category   string `yaml:"category"`
		Signatures []struct {
			Name    string `yaml:"name"`
			Pattern string `yaml:"pattern"`
		} `yaml:"signatures"`
	} `yaml:"inspection"`
	Scanner []struct {
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"`
	} `yaml:"scanner"`
}

// LoadCatalog reads a signature catalog from a YAML file. Category order
// in the file is the classifier's evaluation order.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signature file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse signature file %s: %w", path, err)
	}
	var inspection []CategoryRules
	for _, entry := range file.Inspection {
		cat := Category(entry.Category)
		if !ValidCategory(cat) {
			return nil, fmt.Errorf("signature file %s: unknown category %q", path, entry.Category)
		}
		rules := CategoryRules{Category: cat}
		for _, sig := range entry.Signatures {
			re, err := regexp.Compile(sig.Pattern)
			if err != nil {
				return nil, fmt.Errorf("signature %s/%s: %w", entry.Category, sig.Name, err)
			}
			rules.Signatures = append(rules.Signatures, Signature{Name: sig.Name, Regex: re})
		}
		inspection = append(inspection, rules)
	}
	var scanner []Signature
	for _, sig := range file.Scanner {
		re, err := regexp.Compile(sig.Pattern)
		if err != nil {
			return nil, fmt.Errorf("scanner signature %s: %w", sig.Name, err)
		}
		scanner = append(scanner, Signature{Name: sig.Name, Regex: re})
	}
	return NewCatalog(inspection, scanner), nil
}

// CatalogProvider publishes the active catalog. Swap replaces it
// atomically so in-flight inspections keep the snapshot they started
// with; there is no partial update.
type CatalogProvider struct {
	v atomic.Value
}

func NewCatalogProvider(c *Catalog) *CatalogProvider {
	p := &CatalogProvider{}
	p.v.Store(c)
	return p
}

// Current returns the active catalog snapshot.
func (p *CatalogProvider) Current() *Catalog {
	return p.v.Load().(*Catalog)
}

// Swap publishes a new catalog.
func (p *CatalogProvider) Swap(c *Catalog) {
	if c != nil {
		p.v.Store(c)
	}
}
