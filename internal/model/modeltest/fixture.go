// Package modeltest builds small geometry buffers for tests.
package modeltest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
)

type Param struct {
	ID      string  `json:"id"`
	Min     float32 `json:"min"`
	Max     float32 `json:"max"`
	Default float32 `json:"default"`
}

// Rig declares every tracked channel in modern naming plus breath and hair
// parameters.
func Rig() []Param {
	return []Param{
		{"ParamAngleX", -30, 30, 0},
		{"ParamAngleY", -30, 30, 0},
		{"ParamAngleZ", -30, 30, 0},
		{"ParamEyeBallX", -1, 1, 0},
		{"ParamEyeBallY", -1, 1, 0},
		{"ParamBodyAngleX", -10, 10, 0},
		{"ParamBodyAngleY", -10, 10, 0},
		{"ParamBodyAngleZ", -10, 10, 0},
		{"ParamEyeLOpen", 0, 1, 1},
		{"ParamEyeROpen", 0, 1, 1},
		{"ParamMouthOpenY", 0, 1, 0},
		{"ParamMouthForm", -1, 1, 0},
		{"ParamBreath", 0, 1, 0},
		{"ParamHairFront", -1, 1, 0},
	}
}

// Triangle returns a glTF document with one drawable named "face" at
// positions (-1,0) (1,0) (0,2), sampling texture slot 0 at half opacity.
// Its two morph targets move vertex 2 up by one unit and every vertex
// right by half a unit; targetNames binds them to parameters. With params
// nil the document declares no parameters and no canvas; otherwise the
// canvas is 4x4.
func Triangle(params []Param, targetNames ...string) []byte {
	var buf bytes.Buffer
	write := func(v any) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	// positions, uvs, indices padded to 4 bytes, mouth delta, angle delta
	write([]float32{-1, 0, 0, 1, 0, 0, 0, 2, 0})
	write([]float32{0, 1, 1, 1, 0.5, 0})
	write([]uint16{0, 1, 2, 0})
	write([]float32{0, 0, 0, 0, 0, 0, 0, 1, 0})
	write([]float32{0.5, 0, 0, 0.5, 0, 0, 0.5, 0, 0})

	asset := map[string]any{"version": "2.0"}
	if params != nil {
		asset["extras"] = map[string]any{
			"parameters": params,
			"canvas":     map[string]any{"width": 4, "height": 4},
		}
	}

	doc := map[string]any{
		"asset": asset,
		"buffers": []map[string]any{{
			"byteLength": buf.Len(),
			"uri":        "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		}},
		"bufferViews": []map[string]any{
			{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			{"buffer": 0, "byteOffset": 36, "byteLength": 24},
			{"buffer": 0, "byteOffset": 60, "byteLength": 6},
			{"buffer": 0, "byteOffset": 68, "byteLength": 36},
			{"buffer": 0, "byteOffset": 104, "byteLength": 36},
		},
		"accessors": []map[string]any{
			{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
			{"bufferView": 1, "componentType": 5126, "count": 3, "type": "VEC2"},
			{"bufferView": 2, "componentType": 5123, "count": 3, "type": "SCALAR"},
			{"bufferView": 3, "componentType": 5126, "count": 3, "type": "VEC3"},
			{"bufferView": 4, "componentType": 5126, "count": 3, "type": "VEC3"},
		},
		"images":   []map[string]any{{"uri": "texture_00.png"}},
		"textures": []map[string]any{{"source": 0}},
		"materials": []map[string]any{{
			"pbrMetallicRoughness": map[string]any{
				"baseColorTexture": map[string]any{"index": 0},
				"baseColorFactor":  []float64{1, 1, 1, 0.5},
			},
		}},
		"meshes": []map[string]any{{
			"name": "face",
			"primitives": []map[string]any{{
				"attributes": map[string]int{"POSITION": 0, "TEXCOORD_0": 1},
				"indices":    2,
				"material":   0,
				"targets":    []map[string]int{{"POSITION": 3}, {"POSITION": 4}},
			}},
			"extras": map[string]any{"targetNames": targetNames, "order": 5},
		}},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}
