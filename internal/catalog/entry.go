// Package catalog describes the animation files available to a character:
// their human-readable names, categories and the manifest that lists them.
package catalog

import (
	"path/filepath"
	"strings"
)

// Category groups clips by intent.
type Category string

const (
	CategoryDance      Category = "Dance"
	CategoryExpression Category = "Expression"
	CategoryIdle       Category = "Idle"
	CategoryLocomotion Category = "Locomotion"
	CategoryOther      Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryDance,
	CategoryExpression,
	CategoryIdle,
	CategoryLocomotion,
	CategoryOther,
}

// ParseCategory maps a case-insensitive label to a Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return CategoryOther, false
}

// Entry is one animation file plus the name the rest of the system uses for it.
type Entry struct {
	Path     string
	Name     string
	Category Category
	Variant  string // "M", "F" or empty
}

// CategoryOf infers the category from a directory segment of path.
func CategoryOf(path string) Category {
	for _, seg := range segments(path) {
		switch strings.ToLower(seg) {
		case "dance":
			return CategoryDance
		case "expression":
			return CategoryExpression
		case "idle":
			return CategoryIdle
		case "locomotion":
			return CategoryLocomotion
		}
	}
	return CategoryOther
}

// VariantOf returns "M" or "F" for masculine or feminine rig libraries.
func VariantOf(path string) string {
	for _, seg := range segments(path) {
		switch strings.ToLower(seg) {
		case "masculine":
			return "M"
		case "feminine":
			return "F"
		}
	}
	return ""
}

// DescribePath builds the default clip name "<Category> <Variant> <stem>".
func DescribePath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := []string{string(CategoryOf(path))}
	if v := VariantOf(path); v != "" {
		parts = append(parts, v)
	}
	parts = append(parts, stem)
	return strings.Join(parts, " ")
}

// NewEntry derives an entry from a path, using name when it is not empty.
func NewEntry(path, name string) Entry {
	if strings.TrimSpace(name) == "" {
		name = DescribePath(path)
	}
	return Entry{
		Path:     path,
		Name:     name,
		Category: CategoryOf(path),
		Variant:  VariantOf(path),
	}
}

func segments(path string) []string {
	dir := filepath.ToSlash(filepath.Dir(path))
	return strings.Split(dir, "/")
}
