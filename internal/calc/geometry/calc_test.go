package geometry

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/fixed"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return fixed.Null(d(s)) }

func codes(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestResolvePriority(t *testing.T) {
	t.Parallel()

	r := NewResolver(decimal.Zero)
	tests := []struct {
		name   string
		in     Dimensions
		radius string
		source Source
	}{
		{"inside diameter wins", Dimensions{InsideDiameter: nd("48"), OutsideDiameter: nd("49"), WallThickness: nd("0.5"), NPS: "24", Schedule: "40"}, "24", SourceInsideDiameter},
		{"outside less two walls", Dimensions{OutsideDiameter: nd("49"), WallThickness: nd("0.5"), NPS: "24", Schedule: "40"}, "24", SourceOutsideAndWall},
		{"pipe table", Dimensions{NPS: "6", Schedule: "40"}, "3.0325", SourcePipeTable},
		{"pipe table aliases", Dimensions{NPS: "NPS 1.5\"", Schedule: "Sch 80"}, "0.75", SourcePipeTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := r.Resolve(tt.in)
			require.NoError(t, err)
			assert.True(t, res.Radius.Equal(d(tt.radius)), "radius %s", res.Radius)
			assert.Equal(t, tt.source, res.Source)
		})
	}
}

func TestResolveUnresolved(t *testing.T) {
	t.Parallel()

	r := NewResolver(decimal.Zero)
	tests := []struct {
		name  string
		in    Dimensions
		field string
	}{
		{"nothing", Dimensions{}, "internal_radius"},
		{"od without wall", Dimensions{OutsideDiameter: nd("10")}, "wall_thickness"},
		{"nps without schedule", Dimensions{NPS: "6"}, "schedule"},
		{"unknown schedule", Dimensions{NPS: "6", Schedule: "XXS"}, "nps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Resolve(tt.in)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindResolution), "%v", err)
			fields := errs.Fields(err)
			require.Len(t, fields, 1)
			assert.Equal(t, tt.field, fields[0].Field)
		})
	}
}

func TestNonPositiveDerivedDiameterIsComputationError(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(decimal.Zero).Resolve(Dimensions{OutsideDiameter: nd("1"), WallThickness: nd("0.5")})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindComputation))
}

func TestValidateFlagsWithoutClamping(t *testing.T) {
	t.Parallel()

	r := NewResolver(decimal.Zero)

	ws := r.Validate(Dimensions{InsideDiameter: nd("1300")}, d("650"))
	assert.Equal(t, []string{"RADIUS_OUTSIDE_APPLICABILITY"}, codes(ws))

	ws = r.Validate(Dimensions{InsideDiameter: nd("50"), OutsideDiameter: nd("49"), WallThickness: nd("0.5")}, d("25"))
	assert.Contains(t, codes(ws), "ID_NOT_LESS_THAN_OD")
	assert.Contains(t, codes(ws), "DIMENSION_MISMATCH")

	ws = r.Validate(Dimensions{InsideDiameter: nd("48"), Length: nd("-1"), Head: "CONICAL"}, d("24"))
	assert.ElementsMatch(t, []string{"NON_POSITIVE_DIMENSION", "UNKNOWN_HEAD_TYPE"}, codes(ws))

	ws = r.Validate(Dimensions{InsideDiameter: nd("48"), OutsideDiameter: nd("49"), WallThickness: nd("0.5"), Head: HeadEllipsoidal}, d("24"))
	assert.Empty(t, ws)
}

func TestLookupPipe(t *testing.T) {
	t.Parallel()

	p, ok := LookupPipe("1/2", "STD")
	require.True(t, ok)
	assert.True(t, p.OutsideDiameter.Equal(d("0.840")))
	assert.True(t, p.WallThickness.Equal(d("0.109")))

	p, ok = LookupPipe(" nps 12 ", "schedule 40")
	require.True(t, ok)
	assert.Equal(t, "12", p.NPS)
	assert.Equal(t, "40", p.Schedule)

	_, ok = LookupPipe("5", "40")
	assert.False(t, ok)

	sizes := PipeSizes()
	require.NotEmpty(t, sizes)
	assert.Equal(t, "1/2", sizes[0])
	assert.Equal(t, "1-1/2", sizes[3])
	assert.Equal(t, "24", sizes[len(sizes)-1])
}

func TestHandlerCalc(t *testing.T) {
	t.Parallel()

	h := &Handler{Resolver: NewResolver(decimal.Zero)}

	rec := httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"nps":"4","schedule":"80"}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"PIPE_TABLE"`)

	rec = httptest.NewRecorder()
	h.Calc(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_data")
}
