package ember

import (
	"fmt"
	"math"
)

// Vertex is the single vertex layout used by the whole pipeline:
// stage-space position, texture coordinates in pixels, and a straight
// (non-premultiplied) RGBA color. Backends premultiply on submission.
type Vertex struct {
	X, Y       float32
	U, V       float32
	R, G, B, A float32
}

// VertexFormat describes the vertex layout of a mesh. The core uses exactly
// one format; the type exists so the geometry-provider contract can name it.
type VertexFormat struct {
	Name     string
	Stride   int // bytes per vertex
	MaxIndex int // highest addressable vertex (uint16 indices)
}

// FormatPosUVColor is the standard vertex format (2D position, UV, RGBA).
var FormatPosUVColor = VertexFormat{Name: "pos2_uv_rgba", Stride: 32, MaxIndex: math.MaxUint16}

// Mesh is ordered vertex/index data plus the appearance fields that decide
// batch compatibility. A nil Texture means solid vertex color.
//
// Mesh satisfies the geometry-provider contract: any node's render either
// submits a Mesh via Painter.BatchMesh or delegates to children.
type Mesh struct {
	Vertices  []Vertex
	Indices   []uint16
	Texture   *Texture
	Smoothing bool
	BlendMode BlendMode // BlendAuto inherits the active render state's mode
}

// Format returns the mesh's vertex format.
func (m *Mesh) Format() VertexFormat { return FormatPosUVColor }

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// IndexCount returns the number of indices.
func (m *Mesh) IndexCount() int { return len(m.Indices) }

// Bounds returns the mesh's local-space axis-aligned bounding box.
func (m *Mesh) Bounds() Rect {
	if len(m.Vertices) == 0 {
		return Rect{}
	}
	minX, minY := m.Vertices[0].X, m.Vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range m.Vertices[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return Rect{float64(minX), float64(minY), float64(maxX - minX), float64(maxY - minY)}
}

// SetColor sets all vertex colors to c.
func (m *Mesh) SetColor(c Color) {
	for i := range m.Vertices {
		m.Vertices[i].R = float32(c.R)
		m.Vertices[i].G = float32(c.G)
		m.Vertices[i].B = float32(c.B)
		m.Vertices[i].A = float32(c.A)
	}
}

// MeshSubset selects a contiguous slice of a mesh's vertices and indices.
// Used when replaying partial batches from the render cache.
type MeshSubset struct {
	VertexID    int
	IndexID     int
	NumVertices int
	NumIndices  int
}

// fullSubset returns a subset covering the entire mesh.
func fullSubset(m *Mesh) MeshSubset {
	return MeshSubset{NumVertices: len(m.Vertices), NumIndices: len(m.Indices)}
}

// quadIndices is the shared index pattern for a two-triangle quad.
var quadIndices = [6]uint16{0, 1, 2, 1, 3, 2}

// newQuadMesh builds a w x h rectangle mesh with the given texture and color.
// UVs span the full texture (or stay zero for untextured quads).
func newQuadMesh(w, h float64, tex *Texture, c Color) Mesh {
	var u1, v1 float32
	if tex != nil {
		u1 = float32(tex.Width)
		v1 = float32(tex.Height)
	}
	r, g, b, a := float32(c.R), float32(c.G), float32(c.B), float32(c.A)
	fw, fh := float32(w), float32(h)
	return Mesh{
		Vertices: []Vertex{
			{0, 0, 0, 0, r, g, b, a},
			{fw, 0, u1, 0, r, g, b, a},
			{0, fh, 0, v1, r, g, b, a},
			{fw, fh, u1, v1, r, g, b, a},
		},
		Indices: append([]uint16(nil), quadIndices[:]...),
		Texture: tex,
	}
}

// validateMesh panics on degenerate geometry. Construction-time check only;
// the render path assumes meshes are well-formed.
func validateMesh(vertices []Vertex, indices []uint16) {
	if len(vertices) < 3 || len(indices) < 3 {
		panic("ember: mesh needs at least 3 vertices and 3 indices")
	}
	if len(indices)%3 != 0 {
		panic("ember: mesh index count must be a multiple of 3")
	}
	if len(vertices) > FormatPosUVColor.MaxIndex+1 {
		panic(fmt.Sprintf("ember: mesh exceeds %d vertices", FormatPosUVColor.MaxIndex+1))
	}
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			panic(fmt.Sprintf("ember: mesh index %d out of range", idx))
		}
	}
}
