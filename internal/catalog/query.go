package catalog

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Dedupe keeps the first entry for each name and logs the ones dropped.
func Dedupe(entries []Entry, log zerolog.Logger) []Entry {
	for _, dup := range lo.FindDuplicatesBy(entries, entryName) {
		log.Warn().Str("name", dup.Name).Str("path", dup.Path).Msg("Duplicate clip name, keeping first")
	}
	return lo.UniqBy(entries, entryName)
}

// Names returns entry names in order.
func Names(entries []Entry) []string {
	return lo.Map(entries, func(e Entry, _ int) string { return e.Name })
}

// ByCategory groups entries by category.
func ByCategory(entries []Entry) map[Category][]Entry {
	return lo.GroupBy(entries, func(e Entry) Category { return e.Category })
}

// IdleNames returns the names of idle clips, optionally restricted to a variant.
func IdleNames(entries []Entry, variant string) []string {
	idles := lo.Filter(entries, func(e Entry, _ int) bool {
		return e.Category == CategoryIdle && (variant == "" || e.Variant == variant)
	})
	return Names(idles)
}

// Find returns the entry with the given name.
func Find(entries []Entry, name string) (Entry, bool) {
	return lo.Find(entries, func(e Entry) bool { return e.Name == name })
}

func entryName(e Entry) string { return e.Name }
