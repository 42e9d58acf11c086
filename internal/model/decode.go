package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"

	"github.com/normanking/rigavatar/internal/params"
)

// extras is the rig metadata carried in the glTF asset extras.
type extras struct {
	Parameters []params.Definition `json:"parameters"`
	Canvas     *struct {
		Width  float32 `json:"width"`
		Height float32 `json:"height"`
	} `json:"canvas"`
}

type meshExtras struct {
	TargetNames []string `json:"targetNames"`
	Order       *int     `json:"order"`
}

// Decode parses a glTF or GLB geometry buffer. Every mesh primitive becomes a
// drawable; morph targets named "<ParamID>" or "<ParamID>@<key>" become
// keyforms. Parameters come from the asset extras, and any parameter a
// keyform names that is not declared there is added with a range spanning
// its keys.
func Decode(data []byte) (*Model, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}

	var meta extras
	if err := remarshal(doc.Asset.Extras, &meta); err != nil {
		return nil, fmt.Errorf("geometry asset extras: %w", err)
	}

	type pending struct {
		param string
		key   float32
		keyed bool
		delta []mgl32.Vec2
	}
	var (
		drawables []*Drawable
		keyforms  [][]pending
	)

	for mi, mesh := range doc.Meshes {
		var mx meshExtras
		if err := remarshal(mesh.Extras, &mx); err != nil {
			return nil, fmt.Errorf("mesh %d extras: %w", mi, err)
		}
		order := len(drawables)
		if mx.Order != nil {
			order = *mx.Order
		}

		for pi, prim := range mesh.Primitives {
			posIdx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				return nil, fmt.Errorf("mesh %d primitive %d: no positions", mi, pi)
			}
			positions, err := readVec2(doc, int(posIdx))
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d positions: %w", mi, pi, err)
			}

			d := &Drawable{
				ID:        drawableID(mesh.Name, mi, pi, len(mesh.Primitives)),
				Order:     order,
				Texture:   -1,
				Opacity:   1,
				base:      positions,
				positions: make([]mgl32.Vec2, len(positions)),
			}
			copy(d.positions, positions)

			if tc, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
				if d.UVs, err = readVec2(doc, int(tc)); err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d uvs: %w", mi, pi, err)
				}
			} else {
				d.UVs = make([]mgl32.Vec2, len(positions))
			}

			if prim.Indices != nil {
				if d.Indices, err = readIndices(doc, int(*prim.Indices)); err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d indices: %w", mi, pi, err)
				}
				for _, v := range d.Indices {
					if int(v) >= len(positions) {
						return nil, fmt.Errorf("mesh %d primitive %d: index %d past %d vertices", mi, pi, v, len(positions))
					}
				}
			} else {
				d.Indices = make([]uint32, len(positions))
				for i := range d.Indices {
					d.Indices[i] = uint32(i)
				}
			}

			if prim.Material != nil {
				if err := applyMaterial(doc, int(*prim.Material), d); err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
				}
			}

			var pk []pending
			for ti, target := range prim.Targets {
				if ti >= len(mx.TargetNames) {
					break
				}
				ai, ok := target[gltf.POSITION]
				if !ok {
					continue
				}
				deltas, err := readVec2(doc, int(ai))
				if err != nil {
					return nil, fmt.Errorf("mesh %d target %s: %w", mi, mx.TargetNames[ti], err)
				}
				param, key, keyed, err := parseTargetName(mx.TargetNames[ti])
				if err != nil {
					return nil, fmt.Errorf("mesh %d: %w", mi, err)
				}
				pk = append(pk, pending{param: param, key: key, keyed: keyed, delta: deltas})
			}

			drawables = append(drawables, d)
			keyforms = append(keyforms, pk)
		}
	}

	if len(drawables) == 0 {
		return nil, ErrNoDrawables
	}

	defs := meta.Parameters
	declared := make(map[string]int, len(defs))
	for i, def := range defs {
		declared[def.ID] = i
	}
	for _, pk := range keyforms {
		for _, k := range pk {
			i, ok := declared[k.param]
			if !ok {
				i = len(defs)
				declared[k.param] = i
				defs = append(defs, params.Definition{ID: k.param})
			}
			if i < len(meta.Parameters) {
				continue
			}
			if k.key < defs[i].Min {
				defs[i].Min = k.key
			}
			if k.key > defs[i].Max {
				defs[i].Max = k.key
			}
		}
	}

	table, err := params.NewTable(defs)
	if err != nil {
		return nil, fmt.Errorf("geometry parameters: %w", err)
	}

	for di, d := range drawables {
		for _, k := range keyforms[di] {
			idx := table.Index(k.param)
			key := k.key
			if !k.keyed {
				key = table.Definition(idx).Max
			}
			d.keyforms = append(d.keyforms, Keyform{Param: idx, Key: key, Deltas: k.delta})
		}
	}

	m := &Model{
		table:     table,
		drawables: drawables,
		opacity:   1,
		images:    embeddedImages(doc),
	}
	if meta.Canvas != nil && meta.Canvas.Width > 0 && meta.Canvas.Height > 0 {
		m.width, m.height = meta.Canvas.Width, meta.Canvas.Height
	} else {
		m.width, m.height = bounds(drawables)
	}
	m.sortDrawables()
	m.Update()
	return m, nil
}

func drawableID(name string, mesh, prim, prims int) string {
	if name == "" {
		name = "mesh" + strconv.Itoa(mesh)
	}
	if prims > 1 {
		return name + "#" + strconv.Itoa(prim)
	}
	return name
}

// parseTargetName splits "<ParamID>@<key>". Without a key the keyform applies
// fully at the parameter's maximum.
func parseTargetName(name string) (string, float32, bool, error) {
	param, raw, keyed := strings.Cut(name, "@")
	if param == "" {
		return "", 0, false, fmt.Errorf("morph target %q has no parameter", name)
	}
	if !keyed {
		return param, 1, false, nil
	}
	k, err := strconv.ParseFloat(raw, 32)
	if err != nil || k == 0 {
		return "", 0, false, fmt.Errorf("morph target %q: bad key", name)
	}
	return param, float32(k), true, nil
}

func applyMaterial(doc *gltf.Document, matIdx int, d *Drawable) error {
	if matIdx < 0 || matIdx >= len(doc.Materials) {
		return fmt.Errorf("material %d out of range", matIdx)
	}
	pbr := doc.Materials[matIdx].PBRMetallicRoughness
	if pbr == nil {
		return nil
	}
	if pbr.BaseColorFactor != nil {
		d.Opacity = float32(pbr.BaseColorFactor[3])
	}
	if pbr.BaseColorTexture == nil {
		return nil
	}
	texIdx := int(pbr.BaseColorTexture.Index)
	if texIdx < 0 || texIdx >= len(doc.Textures) {
		return fmt.Errorf("material %d: texture %d out of range", matIdx, texIdx)
	}
	if src := doc.Textures[texIdx].Source; src != nil {
		d.Texture = int(*src)
	}
	return nil
}

func embeddedImages(doc *gltf.Document) [][]byte {
	out := make([][]byte, len(doc.Images))
	for i, img := range doc.Images {
		if img.BufferView == nil {
			continue
		}
		bv, data, err := viewData(doc, int(*img.BufferView))
		if err != nil {
			continue
		}
		start, end := int(bv.ByteOffset), int(bv.ByteOffset)+int(bv.ByteLength)
		if start <= end && end <= len(data) {
			out[i] = data[start:end]
		}
	}
	return out
}

func bounds(ds []*Drawable) (w, h float32) {
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := -minX, -minY
	for _, d := range ds {
		for _, p := range d.base {
			minX, maxX = min(minX, p[0]), max(maxX, p[0])
			minY, maxY = min(minY, p[1]), max(maxY, p[1])
		}
	}
	if maxX < minX {
		return 1, 1
	}
	return max(maxX-minX, 1e-3), max(maxY-minY, 1e-3)
}

// remarshal copies a decoded extras value into a typed struct.
func remarshal(src any, dst any) error {
	if src == nil {
		return nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
