package physics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/rigavatar/internal/params"
)

func hairRig(reflect bool, vertexIndex int) []byte {
	return []byte(fmt.Sprintf(`{
  "Version": 3,
  "Meta": {"EffectiveForces": {"Gravity": {"X": 0, "Y": -1}, "Wind": {"X": 0, "Y": 0}}},
  "PhysicsSettings": [{
    "Id": "PhysicsSetting1",
    "Input": [{"Source": {"Target": "Parameter", "Id": "ParamAngleX"}, "Weight": 100, "Type": "X", "Reflect": false}],
    "Output": [{"Destination": {"Target": "Parameter", "Id": "ParamHairFront"}, "VertexIndex": %d, "Scale": 1, "Weight": 100, "Type": "Angle", "Reflect": %t}],
    "Vertices": [
      {"Position": {"X": 0, "Y": 0}, "Mobility": 1, "Delay": 1, "Acceleration": 1, "Radius": 0},
      {"Position": {"X": 0, "Y": 3}, "Mobility": 0.95, "Delay": 0.9, "Acceleration": 1.5, "Radius": 3}
    ],
    "Normalization": {
      "Position": {"Minimum": -10, "Default": 0, "Maximum": 10},
      "Angle": {"Minimum": -10, "Default": 0, "Maximum": 10}
    }
  }]
}`, vertexIndex, reflect))
}

func newTable(t *testing.T) *params.Table {
	t.Helper()
	table, err := params.NewTable([]params.Definition{
		{ID: "ParamAngleX", Min: -30, Max: 30},
		{ID: "ParamHairFront", Min: -1, Max: 1},
	})
	require.NoError(t, err)
	return table
}

func TestDecode_Errors(t *testing.T) {
	table := newTable(t)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty buffer", nil, ErrNoSettings},
		{"no settings", []byte(`{"Version":3,"PhysicsSettings":[]}`), ErrNoSettings},
		{"bad json", []byte(`{`), nil},
		{"output vertex out of range", hairRig(false, 2), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, table)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDecode_IgnoresUnknownParameters(t *testing.T) {
	table, err := params.NewTable([]params.Definition{{ID: "ParamBreath", Min: 0, Max: 1}})
	require.NoError(t, err)

	r, err := Decode(hairRig(false, 1), table)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Strands())
	r.Evaluate(1.0 / 30)
}

func TestEvaluate_RestStaysNeutral(t *testing.T) {
	table := newTable(t)
	r, err := Decode(hairRig(false, 1), table)
	require.NoError(t, err)

	hair := table.Index("ParamHairFront")
	for i := 0; i < 60; i++ {
		r.Evaluate(1.0 / 30)
	}
	assert.InDelta(t, 0, table.Value(hair), 1e-4)
}

func TestEvaluate_HeadTurnSwingsHair(t *testing.T) {
	tests := []struct {
		name    string
		reflect bool
		sign    float32
	}{
		{"direct", false, 1},
		{"reflected", true, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := newTable(t)
			r, err := Decode(hairRig(tt.reflect, 1), table)
			require.NoError(t, err)

			table.SetValue(table.Index("ParamAngleX"), 30)
			r.Evaluate(1.0 / 30)

			v := table.Value(table.Index("ParamHairFront"))
			assert.Greater(t, v*tt.sign, float32(0))
			assert.LessOrEqual(t, v*tt.sign, float32(1))
		})
	}
}

func TestEvaluate_ZeroDeltaIsNoop(t *testing.T) {
	table := newTable(t)
	r, err := Decode(hairRig(false, 1), table)
	require.NoError(t, err)

	table.SetValue(table.Index("ParamAngleX"), 30)
	r.Evaluate(0)
	assert.Equal(t, float32(0), table.Value(table.Index("ParamHairFront")))

	r.Evaluate(1.0 / 30)
	r.Reset()
	r.Evaluate(0)
	assert.NotEqual(t, float32(0), table.Value(table.Index("ParamHairFront")))
}
