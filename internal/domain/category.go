package domain

import (
	"fmt"
	"strings"
)

// Category identifies one kind of point of interest.
type Category string

const (
	FarmersMarket Category = "farmers_market"
	GroceryStore  Category = "grocery_store"
	FireHouse     Category = "fire_house"
	Supermarket   Category = "supermarket"
	Supercenter   Category = "supercenter"
)

// categories is the fixed ingestion order.
var categories = []Category{FarmersMarket, GroceryStore, FireHouse, Supermarket, Supercenter}

// Categories returns every known category in ingestion order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory converts a user-supplied name into a Category.
// Matching ignores case and treats '-' like '_'.
func ParseCategory(s string) (Category, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	c := Category(normalized)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
