// Package classify defines the pluggable classification policy used to
// bucket line items into spending categories.
package classify

import (
	"strings"

	"github.com/finbase/receipt-insights/internal/receipt"
)

// Classifier assigns at most one category to a line item. Implementations
// are injected into the aggregator, never globally registered.
type Classifier interface {
	// Classify returns the category for an item, or nil when the policy
	// has no opinion.
	Classify(item receipt.LineItem) *receipt.Category
}

// KeywordClassifier matches case-insensitive keywords in the item
// description against a category table. Rules are evaluated in insertion
// order; the first match wins.
type KeywordClassifier struct {
	rules []keywordRule
}

type keywordRule struct {
	category string
	keywords []string
}

// NewKeywordClassifier builds a classifier from a category -> keywords
// table. Keyword matching is case-insensitive substring containment.
func NewKeywordClassifier(table map[string][]string, order []string) *KeywordClassifier {
	c := &KeywordClassifier{}
	for _, cat := range order {
		kws := make([]string, 0, len(table[cat]))
		for _, kw := range table[cat] {
			kws = append(kws, strings.ToUpper(strings.TrimSpace(kw)))
		}
		c.rules = append(c.rules, keywordRule{category: cat, keywords: kws})
	}
	return c
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(item receipt.LineItem) *receipt.Category {
	desc := strings.ToUpper(item.Description)
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if kw != "" && strings.Contains(desc, kw) {
				return &receipt.Category{Name: rule.category}
			}
		}
	}
	return nil
}

var _ Classifier = (*KeywordClassifier)(nil)

// Default returns the built-in keyword policy used when no custom table
// is configured.
func Default() *KeywordClassifier {
	return NewKeywordClassifier(map[string][]string{
		"groceries": {"milk", "bread", "eggs", "cheese", "banana", "apple", "chicken", "rice", "pasta", "yogurt"},
		"dining":    {"coffee", "latte", "espresso", "burger", "pizza", "sandwich", "menu", "meal"},
		"household": {"detergent", "soap", "paper towel", "toilet", "cleaner", "sponge", "trash bag"},
		"transport": {"fuel", "petrol", "diesel", "parking", "ticket", "fare"},
		"pharmacy":  {"paracetamol", "ibuprofen", "vitamin", "plaster", "bandage"},
	}, []string{"groceries", "dining", "household", "transport", "pharmacy"})
}
