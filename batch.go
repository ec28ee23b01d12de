package ember

// BatchToken locates a position in a frame's draw stream: the index of the
// in-progress batch plus the vertex/index counts already written to it.
// Tokens order lexicographically; a half-open pair [push, pop) denotes the
// contiguous slice of draw data a subtree produced.
type BatchToken struct {
	BatchID  int
	VertexID int
	IndexID  int
}

// Less reports whether t precedes o in the draw stream.
func (t BatchToken) Less(o BatchToken) bool {
	if t.BatchID != o.BatchID {
		return t.BatchID < o.BatchID
	}
	if t.VertexID != o.VertexID {
		return t.VertexID < o.VertexID
	}
	return t.IndexID < o.IndexID
}

// MeshBatch accumulates compatible meshes into one draw call's worth of
// geometry. Vertices are stored pre-transformed into stage space; the state
// subset shared by every merged mesh (texture, blend mode, render target,
// clip rect) is captured when the first mesh arrives.
type MeshBatch struct {
	Mesh

	blendMode BlendMode
	target    *Texture
	clipRect  *Rect
}

// sameTexture reports whether two textures are batch-compatible.
func sameTexture(a, b *Texture) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Handle == b.Handle
}

// effectiveBlend resolves a mesh's blend mode: an explicit mode on the mesh
// overrides the active render state's.
func effectiveBlend(m *Mesh, state *RenderState) BlendMode {
	if m.BlendMode != BlendAuto {
		return m.BlendMode
	}
	return state.BlendMode()
}

// CanAddMesh reports whether numVertices vertices of m can merge into this
// batch under the given state: same texture, blend mode and smoothing, and a
// combined vertex count within the index format's addressing limit. Render
// target and clip rect need no check here — changing either flushes the
// in-progress batch through the render state's draw-required callback, so a
// batch never spans them.
func (b *MeshBatch) CanAddMesh(m *Mesh, state *RenderState, numVertices int) bool {
	if len(b.Vertices) == 0 {
		return true
	}
	if len(b.Vertices)+numVertices > FormatPosUVColor.MaxIndex+1 {
		return false
	}
	return sameTexture(b.Texture, m.Texture) &&
		b.Smoothing == m.Smoothing &&
		b.blendMode == effectiveBlend(m, state)
}

// AddMesh appends the subset of m to the batch, transforming positions by the
// state's 2D modelview matrix and multiplying vertex alpha by the state's
// alpha. ignoreTransform skips both (used when replaying cached batches,
// whose vertices are already in stage space).
func (b *MeshBatch) AddMesh(m *Mesh, state *RenderState, subset MeshSubset, ignoreTransform bool) {
	if len(b.Vertices) == 0 {
		b.Texture = m.Texture
		b.Smoothing = m.Smoothing
		b.blendMode = effectiveBlend(m, state)
		b.target = state.RenderTarget()
		if cr := state.ClipRect(); cr != nil {
			rect := *cr
			b.clipRect = &rect
		} else {
			b.clipRect = nil
		}
	}

	vertexBase := len(b.Vertices)
	mv := state.Modelview()
	alpha := float32(state.Alpha)

	for i := subset.VertexID; i < subset.VertexID+subset.NumVertices; i++ {
		v := m.Vertices[i]
		if !ignoreTransform {
			x, y := transformPoint(mv, float64(v.X), float64(v.Y))
			v.X = float32(x)
			v.Y = float32(y)
			v.A *= alpha
		}
		b.Vertices = append(b.Vertices, v)
	}

	for i := subset.IndexID; i < subset.IndexID+subset.NumIndices; i++ {
		b.Indices = append(b.Indices, uint16(int(m.Indices[i])-subset.VertexID+vertexBase))
	}
}

// BlendMode returns the blend mode shared by the batch's meshes.
func (b *MeshBatch) BlendMode() BlendMode { return b.blendMode }

// RenderTarget returns the render target the batch was recorded under
// (nil = back buffer).
func (b *MeshBatch) RenderTarget() *Texture { return b.target }

// ClipRect returns the clip rect the batch was recorded under, or nil.
func (b *MeshBatch) ClipRect() *Rect { return b.clipRect }

// clear empties the batch for reuse, keeping the vertex/index capacity.
func (b *MeshBatch) clear() {
	b.Vertices = b.Vertices[:0]
	b.Indices = b.Indices[:0]
	b.Texture = nil
	b.Smoothing = false
	b.blendMode = BlendNormal
	b.target = nil
	b.clipRect = nil
}

// BatchProcessor merges mesh submissions into the fewest draw calls. The
// painter rotates three instances per frame: current (being filled; next
// frame's cache source), previous (the cache-splice source), and special
// (content excluded from caching, e.g. mask geometry).
type BatchProcessor struct {
	batches []*MeshBatch
	pool    []*MeshBatch
	current *MeshBatch
	token   BatchToken

	// OnBatchComplete receives every finished batch, in stream order.
	// The painter uses it to issue the actual device draw.
	OnBatchComplete func(*MeshBatch)
}

// NewBatchProcessor creates an empty processor.
func NewBatchProcessor() *BatchProcessor {
	return &BatchProcessor{current: &MeshBatch{}}
}

// AddMesh appends the subset of m (the whole mesh when subset is nil) to the
// in-progress batch, finalizing it first if the mesh is incompatible.
func (p *BatchProcessor) AddMesh(m *Mesh, state *RenderState, subset *MeshSubset, ignoreTransform bool) {
	var sub MeshSubset
	if subset != nil {
		sub = *subset
	} else {
		sub = fullSubset(m)
	}
	if sub.NumVertices == 0 {
		return
	}

	if !p.current.CanAddMesh(m, state, sub.NumVertices) {
		p.FinishBatch()
	}
	p.current.AddMesh(m, state, sub, ignoreTransform)

	p.token.VertexID += sub.NumVertices
	p.token.IndexID += sub.NumIndices
}

// FinishBatch finalizes the in-progress batch, handing it to
// OnBatchComplete, and starts a new one. No-op when the batch is empty.
func (p *BatchProcessor) FinishBatch() {
	if len(p.current.Vertices) == 0 {
		return
	}
	p.batches = append(p.batches, p.current)
	p.token.BatchID++
	p.token.VertexID = 0
	p.token.IndexID = 0

	if p.OnBatchComplete != nil {
		p.OnBatchComplete(p.current)
	}

	if n := len(p.pool); n > 0 {
		p.current = p.pool[n-1]
		p.pool = p.pool[:n-1]
	} else {
		p.current = &MeshBatch{}
	}
}

// FillToken captures the current stream position into t.
func (p *BatchProcessor) FillToken(t *BatchToken) {
	*t = p.token
}

// NumBatches returns the number of finished batches.
func (p *BatchProcessor) NumBatches() int {
	return len(p.batches)
}

// BatchAt returns the i-th finished batch.
func (p *BatchProcessor) BatchAt(i int) *MeshBatch {
	return p.batches[i]
}

// Clear recycles all finished batches and resets the stream position.
func (p *BatchProcessor) Clear() {
	for _, b := range p.batches {
		b.clear()
		p.pool = append(p.pool, b)
	}
	p.batches = p.batches[:0]
	p.current.clear()
	p.token = BatchToken{}
}

// Trim drops pooled batches, releasing their buffers. Called occasionally by
// the painter so a single heavy frame doesn't pin memory forever.
func (p *BatchProcessor) Trim() {
	p.pool = nil
}
