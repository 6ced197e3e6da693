// Package risk holds the closed risk enumerations shared by the API 579 calculator
// and the RBI interval service.
package risk

import (
	"fmt"
	"strings"
)

// Level is the five-step risk ranking.
type Level string

const (
	Low        Level = "LOW"
	MediumLow  Level = "MEDIUM_LOW"
	Medium     Level = "MEDIUM"
	MediumHigh Level = "MEDIUM_HIGH"
	High       Level = "HIGH"
)

var levels = []Level{Low, MediumLow, Medium, MediumHigh, High}

func Levels() []Level { return append([]Level(nil), levels...) }

func (l Level) Valid() bool { return l.Rank() > 0 }

// Rank orders levels from 1 (LOW) to 5 (HIGH); 0 for an invalid level.
func (l Level) Rank() int {
	for i, v := range levels {
		if v == l {
			return i + 1
		}
	}
	return 0
}

// Category is the three-step ordinal used on the POF and COF axes and for qualitative factors.
type Category string

const (
	CategoryLow    Category = "LOW"
	CategoryMedium Category = "MEDIUM"
	CategoryHigh   Category = "HIGH"
)

func (c Category) Valid() bool { return c.Index() >= 0 }

// Index is the matrix row/column of c (0..2), or -1.
func (c Category) Index() int {
	switch c {
	case CategoryLow:
		return 0
	case CategoryMedium:
		return 1
	case CategoryHigh:
		return 2
	}
	return -1
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !l.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return l, nil
}
