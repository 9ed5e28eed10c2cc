package output

import (
	"fmt"
	"os"
	"slices"

	"github.com/forest-guardian/slidescan/internal/change"
	"github.com/forest-guardian/slidescan/internal/forest"
	"github.com/forest-guardian/slidescan/internal/properties"
	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/gocarina/gocsv"
)

type ClassCount struct {
	Class  int     `csv:"class"`
	Name   string  `csv:"name"`
	Pixels int     `csv:"pixels"`
	Share  float64 `csv:"share"`
}

// ClassSummary counts the labelled pixels of a classification map per class.
func ClassSummary(m *raster.Raster) ([]ClassCount, error) {
	b, err := m.Band(forest.ClassificationBand)
	if err != nil {
		return nil, err
	}
	counts := map[int]int{}
	total := 0
	for i := range m.Len() {
		if v, ok := b.At(i); ok {
			counts[int(v)]++
			total++
		}
	}

	rows := make([]ClassCount, 0, len(counts))
	for class, n := range counts {
		rows = append(rows, ClassCount{
			Class:  class,
			Name:   properties.ClassNames[class],
			Pixels: n,
			Share:  float64(n) / float64(total),
		})
	}
	slices.SortFunc(rows, func(a, b ClassCount) int { return a.Class - b.Class })
	return rows, nil
}

func WriteClassSummaryCSV(m *raster.Raster, path string) error {
	rows, err := ClassSummary(m)
	if err != nil {
		return err
	}
	return writeCSV(&rows, path)
}

func WriteChangeSummaryCSV(s change.Summary, path string) error {
	rows := []change.Summary{s}
	return writeCSV(&rows, path)
}

func writeCSV(rows interface{}, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
