package ember

import "fmt"

// sharedPrograms is the per-context table of compiled shader programs,
// keyed by device context identity. Multiple painters sharing one GPU
// context reuse compiled state through it. This is the only global resource
// in the package (plain map, no lock — ember is single-threaded).
var sharedPrograms = map[uintptr]map[string]ProgramID{}

// trimInterval is how often (in frames) the painter drops pooled batch
// buffers so one heavy frame doesn't pin memory forever.
const trimInterval = 250

// Painter orchestrates a frame: it owns the render-state stack, the three
// batch processors (current/previous/special), the masking primitives, and
// the per-frame lifecycle. The driving loop each tick is:
//
//	frameID++
//	painter.NextFrame(frameID)
//	stage.BeginFrame(frameID)
//	stage.AdvanceTime(dt)
//	stage.Render(painter)
//	painter.FinishFrame()
//	painter.Present()
//
// The frame counter is owned by the driver and passed down explicitly; the
// painter and stage only mirror it.
type Painter struct {
	device Device

	state      *RenderState
	stateStack []*RenderState
	stackDepth int

	procCurr *BatchProcessor
	procPrev *BatchProcessor
	procSpec *BatchProcessor
	active   *BatchProcessor

	frameID           uint64
	cacheInvalidFrame uint64
	cacheExclusions   []*Node

	clipRectStack []Rect
	stencilRefs   map[TextureID]uint8 // keyed by render target handle; 0 = back buffer

	stats FrameStats
}

// NewPainter creates a painter drawing through device.
func NewPainter(device Device) *Painter {
	p := &Painter{
		device:      device,
		state:       NewRenderState(),
		procCurr:    NewBatchProcessor(),
		procPrev:    NewBatchProcessor(),
		procSpec:    NewBatchProcessor(),
		stencilRefs: map[TextureID]uint8{},
	}
	p.active = p.procCurr
	p.state.SetOnDrawRequired(p.FinishMeshBatch)
	p.procCurr.OnBatchComplete = p.drawBatch
	p.procPrev.OnBatchComplete = p.drawBatch
	p.procSpec.OnBatchComplete = p.drawBatch
	return p
}

// Device returns the painter's GPU device.
func (p *Painter) Device() Device {
	return p.device
}

// State returns the top of the render-state stack.
func (p *Painter) State() *RenderState {
	return p.state
}

// FrameID returns the frame counter value passed to NextFrame.
func (p *Painter) FrameID() uint64 {
	return p.frameID
}

// CacheEnabled reports whether batch ranges recorded this frame may be
// reused next frame. False before the first frame, for one frame after
// InvalidateCache, and while mask geometry renders through the special
// processor.
func (p *Painter) CacheEnabled() bool {
	return p.active == p.procCurr &&
		p.frameID != 0 &&
		p.frameID != p.cacheInvalidFrame
}

// Stats returns the counters accumulated since NextFrame.
func (p *Painter) Stats() FrameStats {
	return p.stats
}

// --- State stack ---

// PushState saves a snapshot of the current render state. Push and pop must
// be strictly paired around each subtree; popping may itself flush pending
// geometry (restoring blend/target/clip/cull is a state change like any
// other), so out-of-order access would submit geometry under wrong state.
func (p *Painter) PushState() {
	if p.stackDepth == len(p.stateStack) {
		p.stateStack = append(p.stateStack, NewRenderState())
	}
	saveRenderState(p.stateStack[p.stackDepth], p.state)
	p.stackDepth++
}

// PopState restores the most recently pushed state snapshot.
// Popping an empty stack is a programmer error and panics immediately.
func (p *Painter) PopState() {
	if p.stackDepth == 0 {
		panic("ember: pop from empty render-state stack")
	}
	p.stackDepth--
	p.state.CopyFrom(p.stateStack[p.stackDepth])
}

// saveRenderState copies src into dst without triggering dst's callback
// (saving a snapshot changes no GPU state). Pointer fields are deep-copied
// because the live state mutates its 3D matrix in place.
func saveRenderState(dst, src *RenderState) {
	dst.Alpha = src.Alpha
	dst.blendMode = src.blendMode
	dst.modelview = src.modelview
	dst.projection = src.projection
	dst.culling = src.culling
	dst.target = src.target
	if src.modelview3D != nil {
		mv := *src.modelview3D
		dst.modelview3D = &mv
	} else {
		dst.modelview3D = nil
	}
	if src.clipRect != nil {
		rect := *src.clipRect
		dst.clipRect = &rect
	} else {
		dst.clipRect = nil
	}
}

// --- Geometry submission ---

// BatchMesh submits mesh geometry under the current render state. subset may
// be nil to submit the whole mesh. This is the single entry point of the
// geometry-provider contract: a node's render either calls this or delegates
// to children.
func (p *Painter) BatchMesh(mesh *Mesh, subset *MeshSubset) {
	p.active.AddMesh(mesh, p.state, subset, false)
}

// FinishMeshBatch flushes the in-progress batch of the active processor.
// Registered as the render state's draw-required callback, so geometry
// batched under an old blend/clip/target/cull never leaks into a new one.
func (p *Painter) FinishMeshBatch() {
	p.active.FinishBatch()
}

// FillToken records the active processor's current stream position into t.
func (p *Painter) FillToken(t *BatchToken) {
	p.active.FillToken(t)
}

// drawBatch issues one finished batch to the device. The batch carries the
// state subset it was recorded under; the modelview is already folded into
// its vertices, so only projection (and any active 3D transform) remains.
func (p *Painter) drawBatch(b *MeshBatch) {
	p.device.SetRenderTarget(b.target)
	p.device.SetScissor(b.clipRect)
	p.device.SetBlend(b.blendMode)
	p.device.DrawIndexed(&DrawCall{
		Texture:   b.Texture,
		Smoothing: b.Smoothing,
		MVP:       p.state.DrawMatrix(),
		Culling:   p.state.Culling(),
		Vertices:  b.Vertices,
		Indices:   b.Indices,
	})
	p.stats.DrawCalls++
	p.stats.Batches++
}

// --- Render cache ---

// DrawFromCache splices the previous frame's batches between two tokens into
// the current stream. Cost is proportional to the number of batches spanned,
// never to the size of the subtree that originally produced them. Tokens
// falling inside a batch yield partial vertex/index subsets.
func (p *Painter) DrawFromCache(start, end BatchToken) {
	if start == end {
		return
	}
	if end.Less(start) {
		panic(fmt.Sprintf("ember: inverted cache range %+v..%+v", start, end))
	}

	p.PushState()
	for i := start.BatchID; i <= end.BatchID && i < p.procPrev.NumBatches(); i++ {
		b := p.procPrev.BatchAt(i)
		sub := MeshSubset{NumVertices: len(b.Vertices), NumIndices: len(b.Indices)}
		if i == start.BatchID {
			sub.VertexID = start.VertexID
			sub.IndexID = start.IndexID
			sub.NumVertices -= start.VertexID
			sub.NumIndices -= start.IndexID
		}
		if i == end.BatchID {
			sub.NumVertices = end.VertexID - sub.VertexID
			sub.NumIndices = end.IndexID - sub.IndexID
		}
		if sub.NumVertices <= 0 {
			continue
		}
		p.state.Alpha = 1
		p.state.SetBlendMode(b.blendMode)
		p.active.AddMesh(&b.Mesh, p.state, &sub, true)
	}
	p.PopState()
	p.stats.CacheSplices++
}

// ExcludeFromCache schedules n's recorded batch range to be invalidated at
// the end of the frame, guaranteeing a full re-render of its subtree next
// frame. The exclusion covers n's whole ancestor chain: an enclosing
// container must not replay a cached range that swallows n, because mask,
// scissor, stencil, and 3D state are not part of the recorded batch stream.
// Used for masked objects, 3D subtrees, filtered nodes, and debug overlays.
func (p *Painter) ExcludeFromCache(n *Node) {
	p.cacheExclusions = append(p.cacheExclusions, n)
}

// InvalidateCache drops every recorded batch and disables cache reuse for
// the next frame. The owning application must call this after the device
// reports a lost context has been restored: all previously recorded tokens
// refer to GPU state that no longer exists.
func (p *Painter) InvalidateCache() {
	p.procCurr.Clear()
	p.procPrev.Clear()
	p.procSpec.Clear()
	p.cacheInvalidFrame = p.frameID + 1
	delete(sharedPrograms, p.device.ContextID())
}

// --- Masking ---

// DrawMask draws the mask's geometry so that subsequent draws are limited to
// the area it covers, then registers maskee for cache exclusion (masked
// content is never cache-spliced).
//
// Fast path: an axis-aligned, untextured, childless quad mask under a 2D
// state becomes a scissor rectangle, intersected with any enclosing clip
// rects. General path: the mask renders into the stencil buffer with color
// writes disabled, incrementing the current render target's stencil
// reference; subsequent draws require stencil == reference.
func (p *Painter) DrawMask(mask, maskee *Node) {
	p.FinishMeshBatch()
	if maskee != nil {
		p.ExcludeFromCache(maskee)
	}

	if rect, ok := p.rectangularMask(mask); ok {
		p.PushClipRect(rect)
		return
	}

	key := p.stencilKey()
	ref := p.stencilRefs[key]
	p.device.SetColorMask(false)
	p.device.SetStencil(StencilState{Enabled: true, Compare: StencilEqual, Ref: ref, OnPass: StencilIncr})
	p.renderMask(mask)
	ref++
	p.stencilRefs[key] = ref
	p.device.SetColorMask(true)
	p.device.SetStencil(StencilState{Enabled: true, Compare: StencilEqual, Ref: ref, OnPass: StencilKeep})
}

// EraseMask undoes a DrawMask: the scissor rect pops, or the mask's
// geometry decrements the stencil region it incremented. Must be called
// with the same mask, in LIFO order relative to other DrawMask calls.
func (p *Painter) EraseMask(mask, maskee *Node) {
	_ = maskee
	p.FinishMeshBatch()

	if _, ok := p.rectangularMask(mask); ok {
		p.PopClipRect()
		return
	}

	key := p.stencilKey()
	ref := p.stencilRefs[key]
	if ref == 0 {
		panic("ember: EraseMask without matching DrawMask")
	}
	p.device.SetColorMask(false)
	p.device.SetStencil(StencilState{Enabled: true, Compare: StencilEqual, Ref: ref, OnPass: StencilDecr})
	p.renderMask(mask)
	ref--
	p.stencilRefs[key] = ref
	p.device.SetColorMask(true)
	if ref == 0 {
		p.device.SetStencil(StencilState{})
	} else {
		p.device.SetStencil(StencilState{Enabled: true, Compare: StencilEqual, Ref: ref, OnPass: StencilKeep})
	}
}

// rectangularMask reports whether mask qualifies for the scissor fast path
// and returns its stage-space bounds. The 2D contract is authoritative: any
// 3D state in effect falls back to the stencil path.
func (p *Painter) rectangularMask(mask *Node) (Rect, bool) {
	if p.state.Is3D() || mask.Type != NodeTypeQuad ||
		mask.mesh.Texture != nil || len(mask.children) != 0 {
		return Rect{}, false
	}
	m := mask.stageTransform()
	axisAligned := (nearZero(m[1]) && nearZero(m[2])) || (nearZero(m[0]) && nearZero(m[3]))
	if !axisAligned {
		return Rect{}, false
	}
	return transformBounds(m, mask.mesh.Bounds()), true
}

func nearZero(v float64) bool {
	return v > -1e-9 && v < 1e-9
}

// renderMask renders the mask's subtree through the special processor (mask
// geometry must never enter the cacheable stream) in stage coordinates.
func (p *Painter) renderMask(mask *Node) {
	p.PushState()
	prevActive := p.active
	p.active = p.procSpec

	p.state.Alpha = 1
	p.state.SetModelview(mask.stageTransform())
	mask.Render(p)
	p.procSpec.FinishBatch()

	p.active = prevActive
	p.PopState()
}

// stencilKey returns the stencil-reference map key for the current render
// target (handle 0 is reserved for the back buffer).
func (p *Painter) stencilKey() TextureID {
	if t := p.state.RenderTarget(); t != nil {
		return t.Handle
	}
	return 0
}

// StencilReference returns the active stencil reference for the current
// render target. Exposed for tests and debug overlays.
func (p *Painter) StencilReference() uint8 {
	return p.stencilRefs[p.stencilKey()]
}

// --- Clip-rect stack ---

// PushClipRect intersects r (stage coordinates) with the enclosing clip rect
// and makes the result the active scissor. Maintained LIFO with PopClipRect.
func (p *Painter) PushClipRect(r Rect) {
	if n := len(p.clipRectStack); n > 0 {
		r = r.Intersection(p.clipRectStack[n-1])
	}
	p.clipRectStack = append(p.clipRectStack, r)
	p.state.SetClipRect(&r)
}

// PopClipRect restores the clip rect active before the matching
// PushClipRect. Popping an empty stack panics.
func (p *Painter) PopClipRect() {
	n := len(p.clipRectStack)
	if n == 0 {
		panic("ember: pop from empty clip-rect stack")
	}
	p.clipRectStack = p.clipRectStack[:n-1]
	if n-1 > 0 {
		p.state.SetClipRect(&p.clipRectStack[n-2])
	} else {
		p.state.SetClipRect(nil)
	}
}

// --- Frame lifecycle ---

// NextFrame begins a new frame: the current processor becomes the cache
// source (previous), stencil references and the clip and state stacks
// reset, and the frame counter advances to frameID (driver-owned, strictly
// increasing).
func (p *Painter) NextFrame(frameID uint64) {
	if frameID <= p.frameID {
		panic(fmt.Sprintf("ember: frame counter must increase (%d after %d)", frameID, p.frameID))
	}
	p.frameID = frameID

	p.procCurr, p.procPrev = p.procPrev, p.procCurr
	p.procCurr.Clear()
	p.procSpec.Clear()
	p.active = p.procCurr

	p.clipRectStack = p.clipRectStack[:0]
	clear(p.stencilRefs)
	p.stackDepth = 0
	p.state.Reset()
	p.device.SetStencil(StencilState{})
	p.device.SetColorMask(true)

	p.stats = FrameStats{}
}

// FinishFrame flushes the outstanding batch and processes deferred cache
// exclusions. Exclusions are deferred to here so a node excluded mid-frame
// still records consistent tokens for the frame that is ending.
func (p *Painter) FinishFrame() {
	p.procCurr.FinishBatch()

	for i, n := range p.cacheExclusions {
		// The sentinel flows up to the root: otherwise an unchanged ancestor
		// would splice its cached range, replaying the excluded content
		// without the mask/3D state it was recorded under. Stop at an
		// ancestor already excluded this frame; the rest of its chain is done.
		for a := n; a != nil && a.tokenFrame != excludedTokenFrame; a = a.parentOrMaskee() {
			a.tokenFrame = excludedTokenFrame
		}
		p.cacheExclusions[i] = nil
	}
	p.cacheExclusions = p.cacheExclusions[:0]

	if p.frameID%trimInterval == 0 {
		p.procCurr.Trim()
		p.procPrev.Trim()
		p.procSpec.Trim()
	}
}

// Present flips the rendered frame to the visible surface.
func (p *Painter) Present() {
	p.device.Present()
}

// Clear fills the current render target with a color and resets its stencil.
func (p *Painter) Clear(c Color) {
	p.FinishMeshBatch()
	p.device.SetRenderTarget(p.state.RenderTarget())
	p.device.Clear(c)
}

// --- Shared program table ---

// Program returns the compiled program registered under name for the
// device's context, compiling vertexSrc/fragmentSrc on first use. Painters
// sharing a context share the table.
func (p *Painter) Program(name, vertexSrc, fragmentSrc string) (ProgramID, error) {
	ctx := p.device.ContextID()
	table := sharedPrograms[ctx]
	if table == nil {
		table = map[string]ProgramID{}
		sharedPrograms[ctx] = table
	}
	if id, ok := table[name]; ok {
		return id, nil
	}
	id, err := p.device.CompileProgram(name, vertexSrc, fragmentSrc)
	if err != nil {
		return 0, err
	}
	table[name] = id
	return id, nil
}
