package core

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"
)

// SortKey selects the field SortFiles orders by.
type SortKey string

const (
	SortByName      SortKey = "name"
	SortByCreatedAt SortKey = "createdAt"
	SortBySize      SortKey = "size"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterFiles returns the files passing both the name and the time predicate,
// preserving input order. now and weekStart anchor the relative time windows.
func FilterFiles(files []FileDescriptor, filter FileFilter, now time.Time, weekStart time.Weekday) []FileDescriptor {
	nameMatch := nameMatcher(filter.FileName)
	timeMatch := timeMatcher(filter.Time, now, weekStart)
	out := make([]FileDescriptor, 0, len(files))
	for _, f := range files {
		if nameMatch(f.Name) && timeMatch(f.CreatedAt) {
			out = append(out, f)
		}
	}
	return out
}

// SearchFiles narrows files by a case-insensitive substring of the name.
func SearchFiles(files []FileDescriptor, query string) []FileDescriptor {
	if query == "" {
		return slices.Clone(files)
	}
	q := strings.ToLower(query)
	out := make([]FileDescriptor, 0, len(files))
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), q) {
			out = append(out, f)
		}
	}
	return out
}

// SortFiles returns a stably sorted copy. Unknown keys leave the order unchanged.
func SortFiles(files []FileDescriptor, key SortKey, order SortOrder) []FileDescriptor {
	out := slices.Clone(files)
	slices.SortStableFunc(out, func(a, b FileDescriptor) int {
		var c int
		switch key {
		case SortByName:
			c = strings.Compare(a.Name, b.Name)
		case SortByCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case SortBySize:
			c = cmp.Compare(a.Size, b.Size)
		}
		if order == SortDesc {
			return -c
		}
		return c
	})
	return out
}

func nameMatcher(f NameFilter) func(string) bool {
	if f.Pattern == "" {
		return func(string) bool { return true }
	}
	if f.Mode == MatchExact {
		return func(name string) bool { return name == f.Pattern }
	}
	re := globToRegexp(f.Pattern)
	return re.MatchString
}

// globToRegexp turns * and ? into an anchored, case-insensitive expression.
// Every other character matches literally.
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func timeMatcher(f TimeFilter, now time.Time, weekStart time.Weekday) func(time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch f.QuickOption {
	case TimeToday:
		return within(today, today.AddDate(0, 0, 1))
	case TimeYesterday:
		return within(today.AddDate(0, 0, -1), today)
	case TimeThisWeek:
		offset := (int(today.Weekday()) - int(weekStart) + 7) % 7
		start := today.AddDate(0, 0, -offset)
		return within(start, start.AddDate(0, 0, 7))
	case TimeCustom:
		if f.StartTime == nil || f.EndTime == nil {
			return func(time.Time) bool { return true }
		}
		start, end := *f.StartTime, *f.EndTime
		return func(t time.Time) bool { return !t.Before(start) && !t.After(end) }
	default:
		return func(time.Time) bool { return true }
	}
}

// within is the half-open window [from, to).
func within(from, to time.Time) func(time.Time) bool {
	return func(t time.Time) bool { return !t.Before(from) && t.Before(to) }
}
