package threatlens

// Classify evaluates the catalog's inspection categories in order and
// returns the first category with any matching signature. Evaluation
// short-circuits: a payload matching both SQL injection and XSS
// signatures is reported as SQL_INJECTION because injection ranks
// higher in the catalog. That tie-break is policy, not an accident.
//
// No match returns ("", false). OTHER is never produced here; it exists
// only for manually created alerts.
func (c *Catalog) Classify(input string) (Category, bool) {
	for _, rules := range c.inspection {
		for _, sig := range rules.Signatures {
			if sig.Regex.MatchString(input) {
				return rules.Category, true
			}
		}
	}
	return "", false
}
