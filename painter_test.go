package ember

import "testing"

func newTestPainter() (*Painter, *fakeDevice) {
	dev := newFakeDevice()
	p := NewPainter(dev)
	p.NextFrame(1)
	return p, dev
}

// --- State stack ---

func TestPushPopStateRestores(t *testing.T) {
	p, _ := newTestPainter()
	p.State().Alpha = 0.5
	p.State().TransformModelview([6]float64{1, 0, 0, 1, 10, 10})

	p.PushState()
	p.State().Alpha = 0.1
	p.State().SetBlendMode(BlendAdd)
	p.State().TransformModelview([6]float64{2, 0, 0, 2, 0, 0})
	p.PopState()

	if p.State().Alpha != 0.5 {
		t.Errorf("Alpha = %v, want 0.5", p.State().Alpha)
	}
	if p.State().BlendMode() != BlendNormal {
		t.Errorf("BlendMode = %d, want BlendNormal", p.State().BlendMode())
	}
	x, y := transformPoint(p.State().Modelview(), 0, 0)
	if !approxEqual(x, 10, epsilon) || !approxEqual(y, 10, epsilon) {
		t.Errorf("modelview origin = (%f,%f), want (10,10)", x, y)
	}
}

func TestPopStateOnEmptyStackPanics(t *testing.T) {
	p, _ := newTestPainter()
	expectPanic(t, "empty render-state stack", func() { p.PopState() })
}

func TestPopStateFlushesPendingGeometry(t *testing.T) {
	p, dev := newTestPainter()
	m := newQuadMesh(10, 10, nil, ColorWhite)

	p.PushState()
	p.State().SetBlendMode(BlendAdd)
	p.BatchMesh(&m, nil)
	p.PopState() // restoring blend is a state change; the batch must flush first

	if len(dev.draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(dev.draws))
	}
	if dev.draws[0].blend != BlendAdd {
		t.Errorf("flushed batch blend = %d, want BlendAdd", dev.draws[0].blend)
	}
}

// --- Frame lifecycle ---

func TestNextFrameRequiresIncreasingCounter(t *testing.T) {
	p, _ := newTestPainter() // at frame 1
	expectPanic(t, "frame counter", func() { p.NextFrame(1) })
}

func TestCacheEnabledLifecycle(t *testing.T) {
	dev := newFakeDevice()
	p := NewPainter(dev)
	if p.CacheEnabled() {
		t.Error("cache should be disabled before the first frame")
	}
	p.NextFrame(1)
	if !p.CacheEnabled() {
		t.Error("cache should be enabled during a normal frame")
	}
	p.InvalidateCache()
	p.FinishFrame()
	p.NextFrame(2)
	if p.CacheEnabled() {
		t.Error("cache should stay disabled for one frame after invalidation")
	}
	p.FinishFrame()
	p.NextFrame(3)
	if !p.CacheEnabled() {
		t.Error("cache should re-enable after the disabled frame")
	}
}

func TestFinishFrameAppliesCacheExclusions(t *testing.T) {
	p, _ := newTestPainter()
	grandparent := NewContainer("grandparent")
	parent := NewContainer("parent")
	n := NewContainer("n")
	grandparent.AddChild(parent)
	parent.AddChild(n)
	grandparent.tokenFrame = 1
	parent.tokenFrame = 1
	n.tokenFrame = 1

	p.ExcludeFromCache(n)
	if n.tokenFrame != 1 {
		t.Fatal("exclusion must be deferred to FinishFrame")
	}
	p.FinishFrame()

	// The sentinel covers the whole ancestor chain: an enclosing container's
	// cached range swallows the excluded content, so it must not splice either.
	for _, node := range []*Node{n, parent, grandparent} {
		if node.tokenFrame != excludedTokenFrame {
			t.Errorf("%s tokenFrame = %d, want the excluded sentinel", node.Name, node.tokenFrame)
		}
	}
}

// --- DrawFromCache ---

func TestDrawFromCacheSplicesPartialBatch(t *testing.T) {
	p, dev := newTestPainter()
	state := NewRenderState()

	// Record two quads into the cache-source processor by hand.
	a := newQuadMesh(10, 10, nil, ColorWhite)
	b := newQuadMesh(5, 5, nil, ColorWhite)
	var start, end BatchToken
	p.procPrev.Clear()
	p.procPrev.OnBatchComplete = nil // recording the source by hand, not drawing it
	p.procPrev.AddMesh(&a, state, nil, false)
	p.procPrev.FillToken(&start) // between the two quads
	p.procPrev.AddMesh(&b, state, nil, false)
	p.procPrev.FillToken(&end)
	p.procPrev.FinishBatch()

	p.DrawFromCache(start, end)
	p.FinishMeshBatch()

	if len(dev.draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(dev.draws))
	}
	// Only the second quad's 4 vertices / 6 indices were spliced.
	if dev.draws[0].numInds != 6 {
		t.Errorf("spliced indices = %d, want 6", dev.draws[0].numInds)
	}
	if p.Stats().CacheSplices != 1 {
		t.Errorf("CacheSplices = %d, want 1", p.Stats().CacheSplices)
	}
}

func TestDrawFromCacheEmptyRangeIsNoop(t *testing.T) {
	p, dev := newTestPainter()
	tok := BatchToken{BatchID: 0, VertexID: 4, IndexID: 6}
	p.DrawFromCache(tok, tok)
	p.FinishMeshBatch()
	if len(dev.draws) != 0 {
		t.Errorf("draws = %d, want 0", len(dev.draws))
	}
}

func TestDrawFromCacheInvertedRangePanics(t *testing.T) {
	p, _ := newTestPainter()
	expectPanic(t, "inverted cache range", func() {
		p.DrawFromCache(BatchToken{BatchID: 1}, BatchToken{BatchID: 0})
	})
}

// --- Clip-rect stack ---

func TestClipRectStackIntersects(t *testing.T) {
	p, _ := newTestPainter()
	p.PushClipRect(Rect{X: 0, Y: 0, W: 100, H: 100})
	p.PushClipRect(Rect{X: 50, Y: 50, W: 100, H: 100})

	got := p.State().ClipRect()
	if got == nil || *got != (Rect{X: 50, Y: 50, W: 50, H: 50}) {
		t.Errorf("nested clip = %+v, want {50 50 50 50}", got)
	}

	p.PopClipRect()
	got = p.State().ClipRect()
	if got == nil || *got != (Rect{X: 0, Y: 0, W: 100, H: 100}) {
		t.Errorf("outer clip = %+v, want {0 0 100 100}", got)
	}

	p.PopClipRect()
	if p.State().ClipRect() != nil {
		t.Error("clip rect should be nil after the last pop")
	}
}

func TestPopClipRectOnEmptyStackPanics(t *testing.T) {
	p, _ := newTestPainter()
	expectPanic(t, "clip-rect stack", func() { p.PopClipRect() })
}

// --- Masking ---

func TestRectangularMaskUsesScissor(t *testing.T) {
	p, dev := newTestPainter()
	target := NewContainer("target")
	mask := NewQuad("mask", 40, 30, ColorWhite)
	mask.SetPosition(10, 20)
	target.SetMask(mask)

	p.DrawMask(mask, target)
	got := p.State().ClipRect()
	if got == nil || *got != (Rect{X: 10, Y: 20, W: 40, H: 30}) {
		t.Fatalf("clip = %+v, want {10 20 40 30}", got)
	}
	if p.StencilReference() != 0 {
		t.Error("scissor path must not touch the stencil reference")
	}

	m := newQuadMesh(10, 10, nil, ColorWhite)
	p.BatchMesh(&m, nil)
	p.EraseMask(mask, target)
	if p.State().ClipRect() != nil {
		t.Error("EraseMask should pop the clip rect")
	}
	if len(dev.draws) != 1 || dev.draws[0].scissor == "" {
		t.Error("masked geometry should flush with the scissor applied")
	}
}

func TestRotatedMaskUsesStencil(t *testing.T) {
	p, dev := newTestPainter()
	target := NewContainer("target")
	mask := NewQuad("mask", 40, 30, ColorWhite)
	mask.SetRotation(0.5)
	target.SetMask(mask)

	p.DrawMask(mask, target)
	if p.State().ClipRect() != nil {
		t.Error("rotated mask must not take the scissor path")
	}
	if p.StencilReference() != 1 {
		t.Errorf("stencil ref = %d, want 1", p.StencilReference())
	}

	// The mask geometry itself was drawn with color writes off.
	if len(dev.draws) == 0 {
		t.Fatal("mask geometry should reach the device")
	}
	if dev.draws[0].colorMask {
		t.Error("mask geometry must draw with the color mask disabled")
	}

	p.EraseMask(mask, target)
	if p.StencilReference() != 0 {
		t.Errorf("stencil ref after erase = %d, want 0", p.StencilReference())
	}
	if dev.stencil.Enabled {
		t.Error("stencil test should be disabled once the last mask is erased")
	}
	if !dev.colorMask {
		t.Error("color writes should be restored")
	}
}

func TestNestedStencilMasks(t *testing.T) {
	p, _ := newTestPainter()
	outer := NewQuad("outer", 40, 30, ColorWhite)
	outer.SetRotation(0.5)
	inner := NewQuad("inner", 20, 20, ColorWhite)
	inner.SetRotation(1.0)

	p.DrawMask(outer, nil)
	p.DrawMask(inner, nil)
	if p.StencilReference() != 2 {
		t.Errorf("nested stencil ref = %d, want 2", p.StencilReference())
	}
	p.EraseMask(inner, nil)
	if p.StencilReference() != 1 {
		t.Errorf("after inner erase = %d, want 1", p.StencilReference())
	}
	p.EraseMask(outer, nil)
	if p.StencilReference() != 0 {
		t.Errorf("after outer erase = %d, want 0", p.StencilReference())
	}
}

func TestEraseMaskWithoutDrawPanics(t *testing.T) {
	p, _ := newTestPainter()
	mask := NewQuad("mask", 10, 10, ColorWhite)
	mask.SetRotation(0.3)
	expectPanic(t, "EraseMask", func() { p.EraseMask(mask, nil) })
}

// --- Shared program table ---

func TestProgramTableSharedPerContext(t *testing.T) {
	dev := newFakeDevice()
	p1 := NewPainter(dev)
	p2 := NewPainter(dev)

	id1, err := p1.Program("glow", "vs", "fs")
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	id2, err := p2.Program("glow", "other-vs", "other-fs")
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	if id1 != id2 {
		t.Errorf("painters on one context got %d and %d, want shared program", id1, id2)
	}
	if dev.programs != 1 {
		t.Errorf("device compiled %d programs, want 1", dev.programs)
	}

	other := newFakeDevice()
	p3 := NewPainter(other)
	if _, err := p3.Program("glow", "vs", "fs"); err != nil {
		t.Fatalf("Program: %v", err)
	}
	if other.programs != 1 {
		t.Error("a different context must compile its own program")
	}
}

func TestProgramCompileErrorPropagates(t *testing.T) {
	p, _ := newTestPainter()
	if _, err := p.Program("bad", "vs", "ERROR"); err == nil {
		t.Error("compile failure should surface as an error")
	}
}

func TestInvalidateCacheDropsProgramTable(t *testing.T) {
	p, dev := newTestPainter()
	if _, err := p.Program("glow", "vs", "fs"); err != nil {
		t.Fatalf("Program: %v", err)
	}
	p.InvalidateCache()
	if _, err := p.Program("glow", "vs", "fs"); err != nil {
		t.Fatalf("Program: %v", err)
	}
	if dev.programs != 2 {
		t.Errorf("device compiled %d programs, want 2 (recompile after context loss)", dev.programs)
	}
}
