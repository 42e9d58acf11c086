// Package assetstest provides a complete in-memory avatar asset set.
package assetstest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/model/modeltest"
)

const Settings = "rig.model3.json"

const settingsJSON = `{
  "Version": 3,
  "FileReferences": {
    "Moc": "rig.gltf",
    "Textures": ["textures/skin.png"],
    "Physics": "rig.physics3.json",
    "Motions": {
      "Idle": [{"File": "motions/idle.motion3.json"}],
      "Tap": [{"File": "motions/tap.motion3.json", "FadeInTime": 0.25}]
    }
  },
  "Groups": [
    {"Target": "Parameter", "Name": "EyeBlink", "Ids": ["ParamEyeLOpen", "ParamEyeROpen"]},
    {"Target": "Parameter", "Name": "LipSync", "Ids": ["ParamMouthOpenY"]}
  ]
}`

// PhysicsJSON swings ParamHairFront from head turns on ParamAngleX.
const PhysicsJSON = `{
  "Version": 3,
  "Meta": {"EffectiveForces": {"Gravity": {"X": 0, "Y": -1}, "Wind": {"X": 0, "Y": 0}}},
  "PhysicsSettings": [{
    "Id": "PhysicsSetting1",
    "Input": [{"Source": {"Target": "Parameter", "Id": "ParamAngleX"}, "Weight": 100, "Type": "X", "Reflect": false}],
    "Output": [{"Destination": {"Target": "Parameter", "Id": "ParamHairFront"}, "VertexIndex": 1, "Scale": 1, "Weight": 100, "Type": "Angle", "Reflect": false}],
    "Vertices": [
      {"Position": {"X": 0, "Y": 0}, "Mobility": 1, "Delay": 1, "Acceleration": 1, "Radius": 0},
      {"Position": {"X": 0, "Y": 3}, "Mobility": 0.95, "Delay": 0.9, "Acceleration": 1.5, "Radius": 3}
    ],
    "Normalization": {
      "Position": {"Minimum": -10, "Default": 0, "Maximum": 10},
      "Angle": {"Minimum": -10, "Default": 0, "Maximum": 10}
    }
  }]
}`

// IdleJSON ramps ParamBreath from 0 to 1 over one second.
const IdleJSON = `{
  "Version": 3,
  "Meta": {"Duration": 1, "FadeInTime": 0, "FadeOutTime": 0},
  "Curves": [{"Target": "Parameter", "Id": "ParamBreath", "Segments": [0, 0, 0, 1, 1]}]
}`

const tapJSON = `{
  "Version": 3,
  "Meta": {"Duration": 0.5},
  "Curves": [{"Target": "Model", "Id": "EyeBlink", "Segments": [0, 1, 0, 0.5, 0]}]
}`

// PNG encodes a w by h image of one color.
func PNG(w, h int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Source returns a fresh source holding the settings file, the geometry,
// physics and motion buffers, and one red texture.
func Source() assets.MemSource {
	return assets.MemSource{
		Settings:                    []byte(settingsJSON),
		"rig.gltf":                  modeltest.Triangle(modeltest.Rig(), "ParamMouthOpenY", "ParamAngleX@30"),
		"rig.physics3.json":         []byte(PhysicsJSON),
		"motions/idle.motion3.json": []byte(IdleJSON),
		"motions/tap.motion3.json":  []byte(tapJSON),
		"textures/skin.png":         PNG(4, 4, color.NRGBA{R: 255, A: 255}),
	}
}
