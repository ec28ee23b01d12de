package ember

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// RenderState is the mutable snapshot of transform/blend/clip/target settings
// applied to subsequently submitted geometry. The painter keeps a stack of
// these; nodes compose their local settings into the top entry while
// rendering.
//
// The state is pure data: invalid matrices degrade visuals, never control
// flow. The one side effect is the draw-required callback, which fires
// BEFORE blend mode, clip rect, render target, or cull mode change so the
// painter can flush geometry already batched under the old value.
type RenderState struct {
	// Alpha is the accumulated opacity in [0, 1], multiplied into vertex
	// alpha at batch time.
	Alpha float64

	blendMode   BlendMode
	modelview   [6]float64
	modelview3D *mgl32.Mat4 // nil while the state is 2D
	projection  mgl32.Mat4
	clipRect    *Rect
	target      *Texture
	culling     CullMode

	onDrawRequired func()
}

// NewRenderState returns a state with identity transforms, full alpha and
// normal blending.
func NewRenderState() *RenderState {
	s := &RenderState{}
	s.Reset()
	return s
}

// Reset restores the default state: alpha 1, normal blending, identity
// matrices, no clip, back-buffer target, no culling.
func (s *RenderState) Reset() {
	s.Alpha = 1
	s.blendMode = BlendNormal
	s.modelview = identityTransform
	s.modelview3D = nil
	s.projection = mgl32.Ident4()
	s.clipRect = nil
	s.target = nil
	s.culling = CullNone
}

// SetOnDrawRequired registers the callback invoked before a state change
// that invalidates batched-but-unsubmitted geometry.
func (s *RenderState) SetOnDrawRequired(fn func()) {
	s.onDrawRequired = fn
}

func (s *RenderState) requireDraw() {
	if s.onDrawRequired != nil {
		s.onDrawRequired()
	}
}

// --- Transforms ---

// Modelview returns the accumulated 2D modelview matrix.
func (s *RenderState) Modelview() [6]float64 {
	return s.modelview
}

// SetModelview replaces the accumulated 2D modelview matrix. Used when a
// subtree must render in stage coordinates regardless of the traversal
// position, e.g. mask geometry.
func (s *RenderState) SetModelview(m [6]float64) {
	s.modelview = m
}

// TransformModelview prepends a local 2D transform into the accumulated
// matrix (points hit the local transform first, then the accumulation).
func (s *RenderState) TransformModelview(local [6]float64) {
	s.modelview = multiplyAffine(s.modelview, local)
}

// TransformModelview3D folds the current 2D matrix into the 3D modelview
// (allocating it on first use — the one-time 2D→3D upgrade), resets the 2D
// matrix to identity, then prepends m. Once upgraded, a state never reverts
// to 2D; popping the painter's state stack restores the pre-upgrade snapshot
// instead.
func (s *RenderState) TransformModelview3D(m mgl32.Mat4) {
	// Pending geometry was batched against the pure-2D draw matrix and must
	// be issued before the 3D modelview takes effect.
	s.requireDraw()
	if s.modelview3D == nil {
		mv := affineToMat4(s.modelview)
		s.modelview3D = &mv
	} else {
		*s.modelview3D = s.modelview3D.Mul4(affineToMat4(s.modelview))
	}
	s.modelview = identityTransform
	*s.modelview3D = s.modelview3D.Mul4(m)
}

// Is3D reports whether the state has been upgraded to 3D.
func (s *RenderState) Is3D() bool {
	return s.modelview3D != nil
}

// SetProjection builds the perspective projection for the viewport
// (x, y, width, height) of a stage sized stageW x stageH viewed from
// cameraPos. The near plane coincides with the stage's xy-plane, so objects
// at z=0 render at their literal 2D size. A zero cameraPos selects the
// default camera: stage center at the focal length of a 1-radian field of
// view.
func (s *RenderState) SetProjection(x, y, width, height, stageW, stageH float64, cameraPos Vec3) {
	if cameraPos.Z == 0 {
		focal := stageW / (2 * math.Tan(0.5))
		cameraPos = Vec3{stageW / 2, stageH / 2, -focal}
	}
	s.projection = perspectiveProjection(x, y, width, height, cameraPos)
}

// Projection returns the current projection matrix.
func (s *RenderState) Projection() mgl32.Mat4 {
	return s.projection
}

// MVPMatrix returns projection ∘ modelview3D ∘ modelview2D. Recomputed on
// every read — the inputs mutate constantly during traversal, so caching
// would only add invalidation bugs.
func (s *RenderState) MVPMatrix() mgl32.Mat4 {
	mv := affineToMat4(s.modelview)
	if s.modelview3D != nil {
		mv = s.modelview3D.Mul4(mv)
	}
	return s.projection.Mul4(mv)
}

// DrawMatrix returns projection ∘ modelview3D — the matrix for drawing
// batches whose vertices already carry the 2D modelview (the batch processor
// folds it in at submission time).
func (s *RenderState) DrawMatrix() mgl32.Mat4 {
	if s.modelview3D != nil {
		return s.projection.Mul4(*s.modelview3D)
	}
	return s.projection
}

// --- Flushing mutators ---

// BlendMode returns the active blend mode.
func (s *RenderState) BlendMode() BlendMode {
	return s.blendMode
}

// SetBlendMode changes the blend mode, flushing pending geometry first.
// BlendAuto is ignored (nodes use it to inherit; a state always holds a
// concrete mode).
func (s *RenderState) SetBlendMode(mode BlendMode) {
	if mode == BlendAuto || mode == s.blendMode {
		return
	}
	s.requireDraw()
	s.blendMode = mode
}

// ClipRect returns the active clip rect in stage coordinates, or nil.
func (s *RenderState) ClipRect() *Rect {
	return s.clipRect
}

// SetClipRect changes the clip rect, flushing pending geometry first.
func (s *RenderState) SetClipRect(r *Rect) {
	if rectPtrEqual(s.clipRect, r) {
		return
	}
	s.requireDraw()
	if r == nil {
		s.clipRect = nil
	} else {
		rect := *r
		s.clipRect = &rect
	}
}

// RenderTarget returns the active render target (nil = back buffer).
func (s *RenderState) RenderTarget() *Texture {
	return s.target
}

// SetRenderTarget changes the render target, flushing pending geometry
// first. Antialias and depth/stencil options travel on the texture itself.
func (s *RenderState) SetRenderTarget(t *Texture) {
	if sameTexture(s.target, t) {
		return
	}
	s.requireDraw()
	s.target = t
}

// Culling returns the active cull mode.
func (s *RenderState) Culling() CullMode {
	return s.culling
}

// SetCulling changes the cull mode, flushing pending geometry first.
func (s *RenderState) SetCulling(mode CullMode) {
	if mode == s.culling {
		return
	}
	s.requireDraw()
	s.culling = mode
}

// --- Stack support ---

// CopyFrom makes s a copy of other, preserving s's draw-required callback.
// If the copy changes blend, clip, target, or culling, the callback fires
// once before any field is overwritten — restoring a state is as much a
// state change as setting one.
func (s *RenderState) CopyFrom(other *RenderState) {
	if s.blendMode != other.blendMode ||
		s.culling != other.culling ||
		!sameTexture(s.target, other.target) ||
		!rectPtrEqual(s.clipRect, other.clipRect) ||
		!mat4PtrEqual(s.modelview3D, other.modelview3D) {
		s.requireDraw()
	}

	s.Alpha = other.Alpha
	s.blendMode = other.blendMode
	s.modelview = other.modelview
	s.projection = other.projection
	s.culling = other.culling
	s.target = other.target

	if other.modelview3D != nil {
		mv := *other.modelview3D
		s.modelview3D = &mv
	} else {
		s.modelview3D = nil
	}
	if other.clipRect != nil {
		rect := *other.clipRect
		s.clipRect = &rect
	} else {
		s.clipRect = nil
	}
}

func rectPtrEqual(a, b *Rect) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func mat4PtrEqual(a, b *mgl32.Mat4) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
