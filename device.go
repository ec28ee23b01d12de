package ember

import "github.com/go-gl/mathgl/mgl32"

// TextureID is an opaque device texture handle.
type TextureID uint32

// ProgramID is an opaque compiled-shader-program handle.
type ProgramID uint32

// StencilCompare selects the stencil test applied to subsequent draws.
type StencilCompare uint8

const (
	StencilAlways StencilCompare = iota // test disabled / always passes
	StencilEqual                        // pass where stencil == reference
)

// StencilOp selects what happens to the stencil buffer when the test passes.
type StencilOp uint8

const (
	StencilKeep StencilOp = iota // leave the stencil value unchanged
	StencilIncr                  // increment (saturating)
	StencilDecr                  // decrement (saturating)
)

// StencilState is the full stencil configuration for subsequent draws.
type StencilState struct {
	Enabled bool
	Compare StencilCompare
	Ref     uint8
	OnPass  StencilOp
}

// DrawCall is one indexed draw: geometry plus everything not covered by the
// sticky device state (blend, scissor, stencil, render target).
// Vertices are in stage space; MVP maps them to clip space.
type DrawCall struct {
	Program   ProgramID
	Texture   *Texture // nil = untextured (solid vertex color)
	Smoothing bool
	MVP       mgl32.Mat4
	Culling   CullMode
	Vertices  []Vertex
	Indices   []uint16
}

// Device is the GPU abstraction the painter draws through. Implementations:
// an OpenGL backend (device_opengl.go), an Ebitengine backend
// (device_ebiten.go), and a recording fake used by the tests.
//
// All methods are single-threaded; the painter never calls a Device from
// more than one goroutine.
type Device interface {
	// ContextID identifies the underlying GPU context. Painters sharing a
	// context share compiled programs through it.
	ContextID() uintptr

	// CompileProgram compiles and links a shader program. The source
	// language is backend-specific; programs are looked up by name through
	// the painter's shared program table.
	CompileProgram(name, vertexSrc, fragmentSrc string) (ProgramID, error)

	// CreateTexture allocates a texture. renderTarget requests framebuffer
	// attachability; antiAlias and depthStencil follow RenderState's
	// render-target options.
	CreateTexture(width, height int, renderTarget bool, antiAlias int, depthStencil bool) (TextureID, error)

	// DestroyTexture releases a texture created with CreateTexture.
	DestroyTexture(id TextureID)

	// SetRenderTarget binds target as the draw destination, or the back
	// buffer when target is nil.
	SetRenderTarget(target *Texture)

	// SetScissor restricts drawing to r (target coordinates), or disables
	// scissoring when r is nil.
	SetScissor(r *Rect)

	// SetBlend selects the blend equation for subsequent draws.
	SetBlend(mode BlendMode)

	// SetStencil configures the stencil test and write ops.
	SetStencil(s StencilState)

	// SetColorMask enables or disables color writes. Disabled while mask
	// geometry populates the stencil buffer.
	SetColorMask(write bool)

	// Clear fills the current render target with a color and zeroes the
	// stencil buffer.
	Clear(c Color)

	// DrawIndexed uploads the call's buffers and issues one indexed draw.
	DrawIndexed(call *DrawCall)

	// Present flips the rendered frame to the visible surface.
	Present()

	// OnContextLost registers the fatal context-loss notification. The
	// owning application must rebuild all GPU state; the painter must be
	// told via Painter.InvalidateCache after the context is restored.
	OnContextLost(fn func())
}
