package ember

import (
	"strings"
	"testing"
)

// --- Cache replay ---

func TestCachedFrameMatchesFreshFrame(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	a := NewQuad("a", 10, 10, Color{R: 1, A: 1})
	a.SetPosition(10, 10)
	b := NewQuad("b", 20, 20, Color{G: 1, A: 1})
	b.SetPosition(50, 50)
	stage.AddChild(a)
	stage.AddChild(b)

	fresh := runFrame(t, stage, painter, dev)
	if painter.Stats().CacheSplices != 0 {
		t.Errorf("first frame splices = %d, want 0", painter.Stats().CacheSplices)
	}

	cached := runFrame(t, stage, painter, dev)
	assertStreamsEqual(t, cached, fresh, "cached frame")
	if painter.Stats().CacheSplices != 2 {
		t.Errorf("second frame splices = %d, want 2", painter.Stats().CacheSplices)
	}
}

func TestCacheReplayIsStableAcrossManyFrames(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	for i := 0; i < 5; i++ {
		q := NewQuad("q", 10, 10, ColorWhite)
		q.SetPosition(float64(i)*15, 0)
		stage.AddChild(q)
	}

	first := runFrame(t, stage, painter, dev)
	for frame := 0; frame < 10; frame++ {
		got := runFrame(t, stage, painter, dev)
		assertStreamsEqual(t, got, first, "replayed frame")
	}
}

func TestMutationInvalidatesOnlyItsSubtree(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	static := NewContainer("static")
	for i := 0; i < 3; i++ {
		q := NewQuad("q", 10, 10, ColorWhite)
		q.SetPosition(float64(i)*12, 0)
		static.AddChild(q)
	}
	moving := NewQuad("moving", 8, 8, Color{B: 1, A: 1})
	moving.SetPosition(0, 50)
	stage.AddChild(static)
	stage.AddChild(moving)

	runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)

	moving.SetPosition(40, 50)
	got := runFrame(t, stage, painter, dev)
	if painter.Stats().CacheSplices != 1 {
		t.Errorf("splices = %d, want 1 (static subtree only)", painter.Stats().CacheSplices)
	}
	found := false
	for _, d := range got {
		if strings.Contains(d, "(40.00,50.00") {
			found = true
		}
	}
	if !found {
		t.Error("moved quad should re-render at its new position")
	}
}

func TestMutationBetweenFramesInvalidates(t *testing.T) {
	// A change made after FinishFrame but before the next NextFrame carries
	// the old frame's stamp and must still force a fresh render.
	stage, painter, dev := newTestScene(100, 100)
	q := NewQuad("q", 10, 10, ColorWhite)
	stage.AddChild(q)

	runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)

	q.SetPosition(30, 0) // between frames: stage frame counter still on the rendered frame

	got := runFrame(t, stage, painter, dev)
	if painter.Stats().CacheSplices != 0 {
		t.Errorf("splices = %d, want 0", painter.Stats().CacheSplices)
	}
	if len(got) != 1 || !strings.Contains(got[0], "(30.00,0.00") {
		t.Errorf("quad should render at its new position, got %v", got)
	}
}

func TestSplicedFrameMatchesUncachedRender(t *testing.T) {
	build := func() (*Stage, *Painter, *fakeDevice) {
		stage, painter, dev := newTestScene(200, 200)
		grid := NewContainer("grid")
		for i := 0; i < 4; i++ {
			q := NewQuad("q", 10, 10, Color{R: 0.5, A: 1})
			q.SetPosition(float64(i)*20, 20)
			grid.AddChild(q)
		}
		mover := NewQuad("mover", 6, 6, Color{G: 1, A: 1})
		stage.AddChild(grid)
		stage.AddChild(mover)
		return stage, painter, dev
	}

	cachedStage, cachedPainter, cachedDev := build()
	freshStage, freshPainter, freshDev := build()

	var cached, fresh []string
	for frame := 0; frame < 4; frame++ {
		// Mutate both scenes identically each frame.
		cachedStage.ChildAt(1).SetPosition(float64(frame)*7, 100)
		freshStage.ChildAt(1).SetPosition(float64(frame)*7, 100)
		freshPainter.InvalidateCache() // keeps the reference scene fully uncached
		cached = runFrame(t, cachedStage, cachedPainter, cachedDev)
		fresh = runFrame(t, freshStage, freshPainter, freshDev)
		assertStreamsEqual(t, cached, fresh, "frame")
	}
	if cachedPainter.Stats().CacheSplices == 0 {
		t.Error("the cached scene should actually be splicing")
	}
	if freshPainter.Stats().CacheSplices != 0 {
		t.Error("the reference scene must not splice")
	}
}

// --- Traversal semantics ---

func TestInvisibleChildrenAreSkipped(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	visible := NewQuad("visible", 10, 10, ColorWhite)
	hidden := NewQuad("hidden", 10, 10, ColorWhite)
	hidden.SetPosition(60, 60)
	hidden.SetVisible(false)
	stage.AddChild(visible)
	stage.AddChild(hidden)

	got := runFrame(t, stage, painter, dev)
	for _, d := range got {
		if strings.Contains(d, "(60.00,60.00") {
			t.Error("hidden child must not render")
		}
	}
}

func TestAlphaMultipliesDownTheTree(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	parent := NewContainer("parent")
	parent.SetAlpha(0.5)
	child := NewQuad("child", 10, 10, ColorWhite)
	child.SetAlpha(0.5)
	parent.AddChild(child)
	stage.AddChild(parent)

	got := runFrame(t, stage, painter, dev)
	if len(got) != 1 || !strings.Contains(got[0], ",0.25)") {
		t.Errorf("vertex alpha should be 0.25, got %v", got)
	}
}

func TestBlendAutoInheritsFromParent(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	parent := NewContainer("parent")
	parent.SetBlendMode(BlendAdd)
	child := NewQuad("child", 10, 10, ColorWhite) // BlendAuto
	parent.AddChild(child)
	stage.AddChild(parent)

	runFrame(t, stage, painter, dev)
	if len(dev.draws) != 1 || dev.draws[0].blend != BlendAdd {
		t.Errorf("child should inherit BlendAdd, draws = %v", dev.drawStream())
	}
}

func TestTransformsComposeDownTheTree(t *testing.T) {
	stage, painter, dev := newTestScene(200, 200)
	parent := NewContainer("parent")
	parent.SetPosition(50, 0)
	parent.SetScale(2, 2)
	child := NewQuad("child", 10, 10, ColorWhite)
	child.SetPosition(5, 5)
	parent.AddChild(child)
	stage.AddChild(parent)

	got := runFrame(t, stage, painter, dev)
	// Child origin: scale(2) then translate(50,0) applied to (5,5) = (60,10).
	if len(got) != 1 || !strings.Contains(got[0], "(60.00,10.00") {
		t.Errorf("composed transform wrong, got %v", got)
	}
}

func TestSubtreeReattachmentRendersAtNewLocation(t *testing.T) {
	stage, painter, dev := newTestScene(200, 200)
	left := NewContainer("left")
	right := NewContainer("right")
	right.SetPosition(100, 0)
	q := NewQuad("q", 10, 10, ColorWhite)
	left.AddChild(q)
	stage.AddChild(left)
	stage.AddChild(right)

	runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)

	right.AddChild(q) // reparent: q itself is stamped, and the stamp flows down on traversal

	got := runFrame(t, stage, painter, dev)
	found := false
	for _, d := range got {
		if strings.Contains(d, "(100.00,0.00") {
			found = true
		}
	}
	if !found {
		t.Errorf("reattached quad should render under its new parent, got %v", got)
	}
}

// --- Cache exclusion ---

func TestMaskedNodeNeverSplices(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	plain := NewQuad("plain", 10, 10, ColorWhite)
	masked := NewQuad("masked", 10, 10, ColorWhite)
	masked.SetPosition(40, 40)
	mask := NewQuad("mask", 50, 50, ColorWhite)
	masked.SetMask(mask)
	stage.AddChild(plain)
	stage.AddChild(masked)

	runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)
	if got := painter.Stats().CacheSplices; got != 1 {
		t.Errorf("splices = %d, want 1 (the unmasked quad only)", got)
	}
	if masked.tokenFrame != excludedTokenFrame {
		t.Error("masked node should carry the exclusion sentinel")
	}
}

func Test3DNodeNeverSplicesAsAUnit(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	flat := NewQuad("flat", 10, 10, ColorWhite)
	spatial := NewSprite3D("spatial")
	spatial.ThreeD().Z = 50
	spatial.AddChild(NewQuad("card", 10, 10, ColorWhite))
	stage.AddChild(flat)
	stage.AddChild(spatial)

	first := runFrame(t, stage, painter, dev)
	if spatial.tokenFrame != excludedTokenFrame {
		t.Error("3D node should carry the exclusion sentinel")
	}

	// The 3D node re-traverses every frame; its unchanged descendants may
	// still splice individually, which is safe because a 3D transform change
	// stamps the whole subtree.
	second := runFrame(t, stage, painter, dev)
	assertStreamsEqual(t, second, first, "repeated 3D frame")
	if spatial.tokenFrame != excludedTokenFrame {
		t.Error("3D node should stay excluded on every frame")
	}
}

func TestFilteredNodeUsesFilterAndNeverSplices(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	q := NewQuad("q", 10, 10, ColorWhite)
	calls := 0
	q.SetFilter(filterFunc(func(p *Painter, n *Node) {
		calls++
		n.Render(p) // pass-through filter
	}))
	stage.AddChild(q)

	runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)
	if calls != 2 {
		t.Errorf("filter ran %d times, want 2 (once per frame, never cached)", calls)
	}
	if painter.Stats().CacheSplices != 0 {
		t.Errorf("splices = %d, want 0", painter.Stats().CacheSplices)
	}
}

type filterFunc func(p *Painter, n *Node)

func (f filterFunc) Render(p *Painter, n *Node) { f(p, n) }

func TestMaskInsideContainerSurvivesCaching(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	box := NewContainer("box")
	content := NewQuad("content", 40, 40, ColorWhite)
	mask := NewQuad("mask", 10, 10, ColorWhite)
	mask.SetPosition(5, 5)
	content.SetMask(mask)
	box.AddChild(content)
	stage.AddChild(box)

	first := runFrame(t, stage, painter, dev)
	if len(dev.draws) != 1 || dev.draws[0].scissor != "5.0,5.0,10.0,10.0" {
		t.Fatalf("first frame = %v, want one draw clipped to the mask", dev.drawStream())
	}

	// The container is unchanged, but its cached range swallows the masked
	// content and the scissor is not part of that range. It must re-traverse.
	second := runFrame(t, stage, painter, dev)
	assertStreamsEqual(t, second, first, "cached masked frame")
	if len(dev.draws) != 1 || dev.draws[0].scissor == "" {
		t.Errorf("mask lost to a container splice: %v", dev.drawStream())
	}
	if box.tokenFrame != excludedTokenFrame {
		t.Error("the enclosing container should carry the exclusion sentinel")
	}
}

func Test3DInsideContainerExcludesContainer(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	box := NewContainer("box")
	spatial := NewSprite3D("spatial")
	spatial.ThreeD().Z = 40
	spatial.AddChild(NewQuad("card", 10, 10, ColorWhite))
	box.AddChild(spatial)
	stage.AddChild(box)

	first := runFrame(t, stage, painter, dev)
	second := runFrame(t, stage, painter, dev)
	assertStreamsEqual(t, second, first, "cached 3D frame")
	// A container splice would replay the card's vertices under the plain
	// stage projection, dropping the 3D modelview.
	if box.tokenFrame != excludedTokenFrame {
		t.Error("a container holding a 3D subtree must not splice as a unit")
	}
}

func TestMixedFrameSplicesOnlyTheUnchangedSubtree(t *testing.T) {
	// One frame with an unchanged container, a moved quad, and a newly added
	// quad: exactly one splice, fresh traversals for the other two.
	stage, painter, dev := newTestScene(200, 200)
	static := NewContainer("static")
	for i := 0; i < 3; i++ {
		q := NewQuad("q", 10, 10, ColorWhite)
		q.SetPosition(float64(i)*12, 0)
		static.AddChild(q)
	}
	moved := NewQuad("moved", 8, 8, Color{R: 1, A: 1})
	moved.SetPosition(0, 50)
	stage.AddChild(static)
	stage.AddChild(moved)

	runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)

	moved.SetPosition(70, 50)
	added := NewQuad("added", 8, 8, Color{B: 1, A: 1})
	added.SetPosition(0, 80)
	stage.AddChild(added)

	got := runFrame(t, stage, painter, dev)
	if painter.Stats().CacheSplices != 1 {
		t.Errorf("splices = %d, want 1 (the unchanged container only)", painter.Stats().CacheSplices)
	}
	var sawMoved, sawAdded bool
	for _, d := range got {
		if strings.Contains(d, "(70.00,50.00") {
			sawMoved = true
		}
		if strings.Contains(d, "(0.00,80.00") {
			sawAdded = true
		}
	}
	if !sawMoved || !sawAdded {
		t.Errorf("moved=%v added=%v, want both rendered fresh: %v", sawMoved, sawAdded, got)
	}
}

// --- Context loss ---

func TestContextLossForcesFullRedraw(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	a := NewQuad("a", 10, 10, ColorWhite)
	b := NewQuad("b", 10, 10, ColorWhite)
	b.SetPosition(30, 0)
	stage.AddChild(a)
	stage.AddChild(b)

	reference := runFrame(t, stage, painter, dev)
	runFrame(t, stage, painter, dev)

	painter.InvalidateCache()

	lost := runFrame(t, stage, painter, dev)
	assertStreamsEqual(t, lost, reference, "post-loss frame")
	if painter.Stats().CacheSplices != 0 {
		t.Errorf("splices right after loss = %d, want 0", painter.Stats().CacheSplices)
	}

	runFrame(t, stage, painter, dev) // records fresh tokens again
	recovered := runFrame(t, stage, painter, dev)
	assertStreamsEqual(t, recovered, reference, "recovered frame")
	if painter.Stats().CacheSplices == 0 {
		t.Error("cache should resume splicing after recovery")
	}
}

// --- Masking through the render path ---

func TestMaskedRenderAppliesScissor(t *testing.T) {
	stage, painter, dev := newTestScene(100, 100)
	content := NewQuad("content", 80, 80, ColorWhite)
	mask := NewQuad("mask", 30, 30, ColorWhite)
	mask.SetPosition(10, 10)
	content.SetMask(mask)
	stage.AddChild(content)

	runFrame(t, stage, painter, dev)
	if len(dev.draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(dev.draws))
	}
	if dev.draws[0].scissor != "10.0,10.0,30.0,30.0" {
		t.Errorf("scissor = %q, want the mask bounds", dev.draws[0].scissor)
	}
}
