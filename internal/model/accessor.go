package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

var errNoBufferData = errors.New("buffer has no embedded data")

// view resolves an accessor to its backing bytes, element stride and count.
func view(doc *gltf.Document, accessorIdx int) (*gltf.Accessor, []byte, int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, nil, 0, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.BufferView == nil {
		return nil, nil, 0, fmt.Errorf("accessor %d has no buffer view", accessorIdx)
	}
	bufferView, data, err := viewData(doc, int(*accessor.BufferView))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("accessor %d: %w", accessorIdx, err)
	}
	offset := int(bufferView.ByteOffset) + int(accessor.ByteOffset)
	if offset > len(data) {
		return nil, nil, 0, fmt.Errorf("accessor %d starts past end of buffer", accessorIdx)
	}
	return accessor, data[offset:], int(bufferView.ByteStride), nil
}

func components(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	}
	return 0
}

// readVec2 reads the x and y of a float VEC2, VEC3 or VEC4 accessor.
func readVec2(doc *gltf.Document, accessorIdx int) ([]mgl32.Vec2, error) {
	accessor, data, stride, err := view(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if accessor.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("accessor %d: want float components", accessorIdx)
	}
	n := components(accessor.Type)
	if n < 2 {
		return nil, fmt.Errorf("accessor %d: want a vector type", accessorIdx)
	}
	if stride == 0 {
		stride = n * 4
	}

	count := int(accessor.Count)
	if count > 0 && (count-1)*stride+n*4 > len(data) {
		return nil, fmt.Errorf("accessor %d overruns its buffer", accessorIdx)
	}
	result := make([]mgl32.Vec2, count)
	for i := range result {
		at := i * stride
		result[i] = mgl32.Vec2{
			math.Float32frombits(binary.LittleEndian.Uint32(data[at:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[at+4:])),
		}
	}
	return result, nil
}

func readIndices(doc *gltf.Document, accessorIdx int) ([]uint32, error) {
	accessor, data, _, err := view(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	count := int(accessor.Count)
	result := make([]uint32, count)

	switch accessor.ComponentType {
	case gltf.ComponentUbyte:
		if count > len(data) {
			return nil, fmt.Errorf("accessor %d overruns its buffer", accessorIdx)
		}
		for i := range result {
			result[i] = uint32(data[i])
		}
	case gltf.ComponentUshort:
		if count*2 > len(data) {
			return nil, fmt.Errorf("accessor %d overruns its buffer", accessorIdx)
		}
		for i := range result {
			result[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case gltf.ComponentUint:
		if count*4 > len(data) {
			return nil, fmt.Errorf("accessor %d overruns its buffer", accessorIdx)
		}
		for i := range result {
			result[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	default:
		return nil, fmt.Errorf("accessor %d: unsupported index type", accessorIdx)
	}
	return result, nil
}

// viewData resolves a buffer view and the whole buffer it points into.
func viewData(doc *gltf.Document, viewIdx int) (*gltf.BufferView, []byte, error) {
	if viewIdx < 0 || viewIdx >= len(doc.BufferViews) {
		return nil, nil, fmt.Errorf("buffer view %d out of range", viewIdx)
	}
	bv := doc.BufferViews[viewIdx]
	bufIdx := int(bv.Buffer)
	if bufIdx < 0 || bufIdx >= len(doc.Buffers) {
		return nil, nil, fmt.Errorf("buffer view %d: buffer %d out of range", viewIdx, bufIdx)
	}
	data, err := bufferData(doc.Buffers[bufIdx])
	if err != nil {
		return nil, nil, err
	}
	return bv, data, nil
}

// bufferData returns the buffer's bytes. The decoder has already inlined GLB
// chunks and data URIs; external files are not followed.
func bufferData(buffer *gltf.Buffer) ([]byte, error) {
	if len(buffer.Data) > 0 {
		return buffer.Data, nil
	}
	return nil, errNoBufferData
}
