package rbi

import "Wallcheck/internal/calc/risk"

const (
	lo  = risk.CategoryLow
	med = risk.CategoryMedium
	hi  = risk.CategoryHigh
)

// Ordinal lookups in the API 580 matrix convention. Rows and columns follow
// risk.Category.Index (LOW, MEDIUM, HIGH) unless noted.

// basePOF[rsfBand][environment]
var basePOF = [3][3]risk.Category{
	{lo, lo, med},
	{med, med, hi},
	{hi, hi, hi},
}

// effectivenessPOF[pof][effectiveness A..E]
var effectivenessPOF = [3][5]risk.Category{
	{lo, lo, lo, med, med},
	{lo, med, med, med, hi},
	{med, hi, hi, hi, hi},
}

// raisePOF[pof][factor]: a HIGH secondary factor moves POF up one step.
var raisePOF = [3][3]risk.Category{
	{lo, lo, med},
	{med, med, hi},
	{hi, hi, hi},
}

// consequence[criticality][redundancy NONE, PARTIAL, FULL]
var consequence = [3][3]risk.Category{
	{lo, lo, lo},
	{med, med, lo},
	{hi, hi, med},
}

// ranking[pof][cof]
var ranking = [3][3]risk.Level{
	{risk.Low, risk.MediumLow, risk.Medium},
	{risk.MediumLow, risk.Medium, risk.MediumHigh},
	{risk.Medium, risk.MediumHigh, risk.High},
}
