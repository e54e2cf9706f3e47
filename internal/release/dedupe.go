package release

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var titleFolder = cases.Fold()

// NormalizeTitle produces the case-folded, whitespace-trimmed form of a title
// used as a dedup key across sources.
func NormalizeTitle(title string) string {
	return titleFolder.String(strings.TrimSpace(title))
}

// DedupKey builds the (normalized title, sorted distinguishing attributes)
// key used to collapse duplicate entries within one adapter's result set.
func DedupKey(title string, attrs []string) string {
	sorted := make([]string, len(attrs))
	copy(sorted, attrs)
	sort.Strings(sorted)
	var b strings.Builder
	b.WriteString(NormalizeTitle(title))
	for _, attr := range sorted {
		b.WriteByte('|')
		b.WriteString(NormalizeTitle(attr))
	}
	return b.String()
}

// Dedupe collapses records whose key repeats, keeping the first occurrence in
// relevance order. It returns the surviving records and the removed count.
// Applying it twice yields the same result as applying it once.
func Dedupe(records []Record, key func(*Record) string) ([]Record, int) {
	seen := make(map[string]struct{}, len(records))
	unique := make([]Record, 0, len(records))
	for i := range records {
		k := key(&records[i])
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, records[i])
	}
	return unique, len(records) - len(unique)
}

// Snippet truncates free text for size-sensitive boundaries (digest email,
// site feed), appending an ellipsis when text was cut.
func Snippet(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	cut := max - 3
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + "..."
}
