package core

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/gosimple/slug"
)

// closestMaxDistance bounds the edit distance of a did-you-mean hint.
const closestMaxDistance = 2

// Registry is the set of category labels offered as suggestions. Labels are
// kept normalized, unique case-insensitively and sorted ascending.
//
// A Registry is not safe for concurrent use; its owner serializes access.
type Registry struct {
	labels  []string
	pending map[string]string // key -> label, registered but not on any record
}

func NewRegistry(labels ...string) *Registry {
	r := &Registry{pending: make(map[string]string)}
	for _, l := range labels {
		r.insert(l)
	}
	return r
}

// Register adds category as a pending label. Registering a label twice, in
// any casing, leaves the registry unchanged. Blank input is ignored.
func (r *Registry) Register(category string) {
	label := NormalizeLabel(category)
	if label == "" {
		return
	}
	if r.insert(label) {
		r.pending[labelKey(label)] = label
	}
}

// Remove drops category from the suggestions. Records tagged with it are not
// touched; the next reconciliation brings back any label still in use.
func (r *Registry) Remove(category string) {
	key := labelKey(category)
	if key == "" {
		return
	}
	delete(r.pending, key)
	for i, l := range r.labels {
		if strings.ToLower(l) == key {
			r.labels = append(r.labels[:i], r.labels[i+1:]...)
			return
		}
	}
}

// Suggest returns labels starting with prefix, case-insensitively, in
// ascending order. An empty prefix returns every label.
func (r *Registry) Suggest(prefix string) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	out := make([]string, 0, len(r.labels))
	for _, l := range r.labels {
		if strings.HasPrefix(strings.ToLower(l), p) {
			out = append(out, l)
		}
	}
	return out
}

// Labels returns every registered label in ascending order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.labels...)
}

// Contains reports whether category is registered, ignoring case.
func (r *Registry) Contains(category string) bool {
	key := labelKey(category)
	for _, l := range r.labels {
		if strings.ToLower(l) == key {
			return true
		}
	}
	return false
}

// Pending returns registered labels not yet attached to any record.
func (r *Registry) Pending() []string {
	out := make([]string, 0, len(r.pending))
	for _, l := range r.pending {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// ReconcileFromRecords rebuilds the registry from the categories observed in
// records. Pending labels with no record yet survive; pending labels that now
// appear on a record stop being pending.
func (r *Registry) ReconcileFromRecords(records []ExpenseRecord) {
	r.labels = r.labels[:0]
	observed := make(map[string]struct{})
	for _, rec := range records {
		label := NormalizeLabel(rec.Category)
		if label == "" {
			continue
		}
		observed[labelKey(label)] = struct{}{}
		r.insert(label)
	}
	for key, label := range r.pending {
		if _, ok := observed[key]; ok {
			delete(r.pending, key)
			continue
		}
		r.insert(label)
	}
}

// Slug returns the URL key of a label.
func Slug(label string) string {
	return slug.Make(NormalizeLabel(label))
}

// CategoryKey pairs a registered label with its URL key.
type CategoryKey struct {
	Label string
	Slug  string
}

// Keys returns Suggest(prefix) with the URL key of each label.
func (r *Registry) Keys(prefix string) []CategoryKey {
	slugs := r.slugs()
	labels := r.Suggest(prefix)
	out := make([]CategoryKey, 0, len(labels))
	for _, l := range labels {
		out = append(out, CategoryKey{Label: l, Slug: slugs[l]})
	}
	return out
}

// SlugOf returns the URL key of a registered label.
func (r *Registry) SlugOf(category string) (string, bool) {
	key := labelKey(category)
	for l, s := range r.slugs() {
		if strings.ToLower(l) == key {
			return s, true
		}
	}
	return "", false
}

// BySlug finds the registered label whose URL key is s.
func (r *Registry) BySlug(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, ls := range r.slugs() {
		if ls == s {
			return l, true
		}
	}
	return "", false
}

// SlugConflict returns a registered label other than category that has the
// same slug, e.g. "Cafe" for "Café".
func (r *Registry) SlugConflict(category string) (string, bool) {
	label := NormalizeLabel(category)
	if label == "" {
		return "", false
	}
	key, s := labelKey(label), Slug(label)
	for _, l := range r.labels {
		if strings.ToLower(l) != key && Slug(l) == s {
			return l, true
		}
	}
	return "", false
}

// slugs maps every label to a unique URL key. Labels whose slugs collide,
// which records can still introduce, get -2, -3... in ascending label order.
func (r *Registry) slugs() map[string]string {
	out := make(map[string]string, len(r.labels))
	taken := make(map[string]struct{}, len(r.labels))
	for _, l := range r.labels {
		base := Slug(l)
		s := base
		for n := 2; ; n++ {
			if _, ok := taken[s]; !ok {
				break
			}
			s = base + "-" + strconv.Itoa(n)
		}
		taken[s] = struct{}{}
		out[l] = s
	}
	return out
}

// Closest returns the registered label nearest to category when it is a
// likely misspelling of one, i.e. not an exact match but within a small edit
// distance.
func (r *Registry) Closest(category string) (string, bool) {
	key := labelKey(category)
	if key == "" || r.Contains(category) {
		return "", false
	}
	best, bestDist := "", closestMaxDistance+1
	for _, l := range r.labels {
		d := levenshtein.ComputeDistance(key, strings.ToLower(l))
		if d < bestDist {
			best, bestDist = l, d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// insert places label in sorted position and reports whether it was new.
func (r *Registry) insert(label string) bool {
	label = NormalizeLabel(label)
	if label == "" {
		return false
	}
	key := strings.ToLower(label)
	i := sort.Search(len(r.labels), func(i int) bool { return r.labels[i] >= label })
	for _, l := range r.labels {
		if strings.ToLower(l) == key {
			return false
		}
	}
	r.labels = append(r.labels, "")
	copy(r.labels[i+1:], r.labels[i:])
	r.labels[i] = label
	return true
}
