package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortByTimeIsStable(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2018, 7, d, 0, 0, 0, 0, time.UTC) }
	type item struct {
		name string
		at   time.Time
	}
	items := []item{{"c", day(3)}, {"a1", day(1)}, {"b", day(2)}, {"a2", day(1)}}

	sorted := SortByTime(items, func(i item) time.Time { return i.at }, true)

	names := make([]string, len(sorted))
	for i, it := range sorted {
		names[i] = it.name
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, names)
}

func TestSortByTimeDescending(t *testing.T) {
	a := time.Date(2017, 4, 1, 0, 0, 0, 0, time.UTC)
	b := a.AddDate(0, 1, 0)
	sorted := SortByTime([]time.Time{a, b}, func(t time.Time) time.Time { return t }, false)
	assert.Equal(t, []time.Time{b, a}, sorted)
}
