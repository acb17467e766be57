package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementGeometry_Origin(t *testing.T) {
	g := &ElementGeometry{Vertices: []float64{10, 20, 110, 20, 110, 60, 10, 60}, Width: 100, Height: 40}
	x, y := g.Origin()
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)

	var nilGeo *ElementGeometry
	x, y = nilGeo.Origin()
	assert.Zero(t, x)
	assert.Zero(t, y)

	x, y = (&ElementGeometry{Vertices: []float64{5}}).Origin()
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestLaunchOptions_JSONOmitsEmptyOptionals(t *testing.T) {
	data, err := json.Marshal(LaunchOptions{UserAgent: "ua", Window: WindowSize{Width: 1280, Height: 720}})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "userAgent")
	assert.Contains(t, fields, "window")
	assert.Contains(t, fields, "headless")
	for _, k := range []string{"platform", "proxyAddress", "languages", "timezone", "extraFlags"} {
		assert.NotContains(t, fields, k)
	}
}
