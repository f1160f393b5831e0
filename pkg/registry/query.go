package registry

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// Sort orders a listing.
type Sort string

const (
	// SortNone keeps registry order, newest submission first.
	SortNone    Sort = ""
	SortPopular Sort = "popular"
	SortRating  Sort = "rating"
	SortNewest  Sort = "newest"
)

// ParseSort accepts the sort names used by the API and the CLI. "recent" is
// an alias for newest.
func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SortNone, nil
	case "popular":
		return SortPopular, nil
	case "rating":
		return SortRating, nil
	case "newest", "recent":
		return SortNewest, nil
	}
	return "", errors.Errorf("unknown sort %q", s)
}

// All is the filter value meaning "no filter" for status and category.
const All = "all"

// Query selects and orders skills. Empty fields do not filter.
type Query struct {
	Status   string
	Search   string
	Category string
	// Tag is a glob matched case-insensitively against each tag.
	Tag  string
	Sort Sort
}

// MarketplaceQuery lists approved skills only.
func MarketplaceQuery(search, category, tag string, sort Sort) Query {
	return Query{
		Status:   string(skills.StatusApproved),
		Search:   search,
		Category: category,
		Tag:      tag,
		Sort:     sort,
	}
}

// AdminQuery lists every skill with status, or all of them for "all".
func AdminQuery(status string) Query {
	return Query{Status: status}
}

// Filter applies q to list and returns a new slice. It fails only on an
// invalid status or tag pattern.
func Filter(list []skills.Skill, q Query) ([]skills.Skill, error) {
	status := strings.ToLower(strings.TrimSpace(q.Status))
	if status != "" && status != All && !skills.Status(status).Valid() {
		return nil, errors.Errorf("unknown status %q", q.Status)
	}

	var tagMatcher glob.Glob
	if q.Tag != "" {
		g, err := glob.Compile(strings.ToLower(q.Tag))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid tag pattern %q", q.Tag)
		}
		tagMatcher = g
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]skills.Skill, 0, len(list))
	for _, s := range list {
		if status != "" && status != All && string(s.Status) != status {
			continue
		}
		if q.Category != "" && q.Category != All && s.Category != q.Category {
			continue
		}
		if search != "" && !matchesSearch(s, search) {
			continue
		}
		if tagMatcher != nil && !anyTag(s.Tags, tagMatcher.Match) {
			continue
		}
		out = append(out, s.Clone())
	}

	sortSkills(out, q.Sort)
	return out, nil
}

func matchesSearch(s skills.Skill, q string) bool {
	if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	return anyTag(s.Tags, func(tag string) bool { return strings.Contains(tag, q) })
}

func anyTag(tags []string, match func(string) bool) bool {
	for _, t := range tags {
		if match(strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func sortSkills(list []skills.Skill, by Sort) {
	switch by {
	case SortPopular:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Downloads > list[j].Downloads })
	case SortRating:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Rating > list[j].Rating })
	case SortNewest:
		sort.SliceStable(list, func(i, j int) bool { return list[i].SubmittedAt.After(list[j].SubmittedAt) })
	}
}

// List applies q to the current collection.
func (r *Registry) List(q Query) ([]skills.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Filter(r.skills, q)
}

// Counts is the number of skills per status.
type Counts struct {
	All      int `json:"all"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Count tallies list by status.
func Count(list []skills.Skill) Counts {
	c := Counts{All: len(list)}
	for _, s := range list {
		switch s.Status {
		case skills.StatusPending:
			c.Pending++
		case skills.StatusApproved:
			c.Approved++
		case skills.StatusRejected:
			c.Rejected++
		}
	}
	return c
}

// Counts tallies the current collection by status.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Count(r.skills)
}
