package ui

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/Dicklesworthstone/sysmoni/internal/config"
	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

// visibleProcesses filters by name or command line and sorts by key.
// Unknown values sort after known ones.
func visibleProcesses(procs []model.Process, filter *regexp.Regexp, key string) []model.Process {
	out := make([]model.Process, 0, len(procs))
	for _, p := range procs {
		if filter != nil && !filter.MatchString(p.Name) && !filter.MatchString(p.Cmdline) {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b model.Process) int {
		var c int
		switch key {
		case "mem":
			c = descNil(a.RSSBytes, b.RSSBytes)
		case "name":
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "pid":
		default:
			c = descNil(a.CPU, b.CPU)
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	})
	return out
}

func descNil[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*b, *a)
}

func nextSort(key string) string {
	i := slices.Index(config.SortKeys, key)
	return config.SortKeys[(i+1)%len(config.SortKeys)]
}
