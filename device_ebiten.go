package ember

import (
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

// maskCompositeShaderSrc selects pixels of the pending geometry (src0) where
// the stencil coverage image (src1) matches the reference level, emulating a
// stencil test the GPU APIs below Ebitengine don't expose.
const maskCompositeShaderSrc = `//kage:unit pixels

package main

var Ref float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	cov := imageSrc1UnsafeAt(src).a
	if abs(cov*255.0-Ref) < 0.5 {
		return imageSrc0UnsafeAt(src)
	}
	return vec4(0)
}
`

// EbitenDevice implements Device on top of Ebitengine. Ebitengine exposes no
// projection matrix or stencil buffer, so this backend projects vertices on
// the CPU (the MVP already maps stage space to normalized coordinates, which
// scale to the window for free) and emulates the stencil test with per-target
// coverage images composited through a Kage shader. Scissor rects become
// SubImage draws. Context loss never fires: Ebitengine restores its own GPU
// state internally.
type EbitenDevice struct {
	contextID uintptr

	stageW, stageH float64
	screen         *ebiten.Image

	textures    map[TextureID]*ebiten.Image
	nextTexture TextureID

	target    *Texture
	scissor   *Rect
	blend     ebiten.Blend
	stencil   StencilState
	colorMask bool

	// stencil emulation
	coverage   map[TextureID]*ebiten.Image
	scratch    map[TextureID]*ebiten.Image
	maskShader *ebiten.Shader

	shaders    map[ProgramID]*ebiten.Shader
	nextShader ProgramID

	whiteImage *ebiten.Image

	verts []ebiten.Vertex
	inds  []uint16
}

var nextContextID uintptr

// NewEbitenDevice creates an Ebitengine-backed device for a stage of the
// given logical size. Call SetScreen with the ebiten.Game's draw target each
// frame before rendering.
func NewEbitenDevice(stageW, stageH float64) (*EbitenDevice, error) {
	if stageW <= 0 || stageH <= 0 {
		panic("ember: device stage size must be positive")
	}
	maskShader, err := ebiten.NewShader([]byte(maskCompositeShaderSrc))
	if err != nil {
		return nil, fmt.Errorf("compiling mask shader: %w", err)
	}

	// 3x3 white source with a 1x1 SubImage keeps untextured triangles from
	// sampling neighboring atlas texels when filtered.
	white := ebiten.NewImage(3, 3)
	white.Fill(color.White)

	nextContextID++
	return &EbitenDevice{
		contextID:   nextContextID,
		stageW:      stageW,
		stageH:      stageH,
		textures:    map[TextureID]*ebiten.Image{},
		nextTexture: 1,
		colorMask:   true,
		coverage:    map[TextureID]*ebiten.Image{},
		scratch:     map[TextureID]*ebiten.Image{},
		maskShader:  maskShader,
		shaders:     map[ProgramID]*ebiten.Shader{},
		nextShader:  1,
		whiteImage:  white.SubImage(image.Rect(1, 1, 2, 2)).(*ebiten.Image),
	}, nil
}

// SetScreen installs the frame's back buffer. Call from ebiten.Game.Draw.
func (d *EbitenDevice) SetScreen(screen *ebiten.Image) {
	d.screen = screen
}

// RegisterImage wraps an existing ebiten.Image as an ember texture. The
// image stays owned by the caller; disposing the returned texture is a no-op.
func (d *EbitenDevice) RegisterImage(img *ebiten.Image) *Texture {
	id := d.nextTexture
	d.nextTexture++
	d.textures[id] = img
	b := img.Bounds()
	return NewTexture(id, float64(b.Dx()), float64(b.Dy()))
}

func (d *EbitenDevice) ContextID() uintptr {
	return d.contextID
}

// CompileProgram compiles fragmentSrc as a Kage shader. Ebitengine has no
// programmable vertex stage; vertexSrc is ignored.
func (d *EbitenDevice) CompileProgram(name, vertexSrc, fragmentSrc string) (ProgramID, error) {
	_ = vertexSrc
	s, err := ebiten.NewShader([]byte(fragmentSrc))
	if err != nil {
		return 0, fmt.Errorf("compiling shader %q: %w", name, err)
	}
	id := d.nextShader
	d.nextShader++
	d.shaders[id] = s
	return id, nil
}

func (d *EbitenDevice) CreateTexture(width, height int, renderTarget bool, antiAlias int, depthStencil bool) (TextureID, error) {
	_ = renderTarget // every ebiten.Image is render-target capable
	_ = antiAlias    // ebiten does not expose multisampled offscreen images
	_ = depthStencil // stencil is emulated; nothing to allocate up front
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	id := d.nextTexture
	d.nextTexture++
	d.textures[id] = ebiten.NewImage(width, height)
	return id, nil
}

func (d *EbitenDevice) DestroyTexture(id TextureID) {
	if img, ok := d.textures[id]; ok {
		img.Deallocate()
		delete(d.textures, id)
	}
	if img, ok := d.coverage[id]; ok {
		img.Deallocate()
		delete(d.coverage, id)
	}
	if img, ok := d.scratch[id]; ok {
		img.Deallocate()
		delete(d.scratch, id)
	}
}

func (d *EbitenDevice) SetRenderTarget(t *Texture) {
	d.target = t
}

func (d *EbitenDevice) SetScissor(r *Rect) {
	d.scissor = r
}

func (d *EbitenDevice) SetBlend(mode BlendMode) {
	d.blend = ebitenBlend(mode)
}

// SetStencil switches the emulated stencil test. Disabling it resets every
// coverage image (the painter disables stencil at frame start).
func (d *EbitenDevice) SetStencil(s StencilState) {
	d.stencil = s
	if !s.Enabled {
		for _, img := range d.coverage {
			img.Clear()
		}
	}
}

func (d *EbitenDevice) SetColorMask(enabled bool) {
	d.colorMask = enabled
}

func (d *EbitenDevice) Clear(c Color) {
	d.targetImage().Fill(color.NRGBA{
		R: uint8(c.R * 255),
		G: uint8(c.G * 255),
		B: uint8(c.B * 255),
		A: uint8(c.A * 255),
	})
}

func (d *EbitenDevice) DrawIndexed(call *DrawCall) {
	src := d.whiteImage
	var texW, texH float32 = 1, 1
	if call.Texture != nil {
		img, ok := d.textures[call.Texture.Handle]
		if !ok {
			panic(fmt.Sprintf("ember: draw with unknown texture %d", call.Texture.Handle))
		}
		src = img
		b := img.Bounds()
		texW, texH = float32(b.Dx()), float32(b.Dy())
	}

	target := d.targetImage()
	tb := target.Bounds()
	tw, th := float64(tb.Dx()), float64(tb.Dy())

	// CPU projection: MVP maps stage space to normalized [-1,1] coordinates
	// (GL convention, y up); map those to target pixels. For plain 2D the
	// round trip lands on stage coordinates scaled to the target.
	d.verts = d.verts[:0]
	for i := range call.Vertices {
		v := &call.Vertices[i]
		nx, ny, _ := projectPoint(call.MVP, float64(v.X), float64(v.Y), 0)
		d.verts = append(d.verts, ebiten.Vertex{
			DstX:   float32((nx + 1) / 2 * tw),
			DstY:   float32((1 - ny) / 2 * th),
			SrcX:   v.U * texW,
			SrcY:   v.V * texH,
			ColorR: v.R,
			ColorG: v.G,
			ColorB: v.B,
			ColorA: v.A,
		})
	}
	d.inds = append(d.inds[:0], call.Indices...)

	if !d.colorMask {
		d.drawStencilCoverage(src)
		return
	}
	if d.stencil.Enabled {
		d.drawStencilTested(src, target)
		return
	}

	if call.Program != 0 {
		shader, ok := d.shaders[call.Program]
		if !ok {
			panic(fmt.Sprintf("ember: draw with unknown program %d", call.Program))
		}
		var op ebiten.DrawTrianglesShaderOptions
		op.Blend = d.blend
		op.Images[0] = src
		d.clippedTarget(target).DrawTrianglesShader(d.verts, d.inds, shader, &op)
		return
	}

	var op ebiten.DrawTrianglesOptions
	op.Blend = d.blend
	op.Filter = triFilter(call.Smoothing)
	d.clippedTarget(target).DrawTriangles(d.verts, d.inds, src, &op)
}

// drawStencilCoverage renders mask geometry into the current target's
// coverage image, raising or lowering the stored level by one step.
func (d *EbitenDevice) drawStencilCoverage(src *ebiten.Image) {
	cov := d.coverageImage()
	for i := range d.verts {
		d.verts[i].ColorR = 0
		d.verts[i].ColorG = 0
		d.verts[i].ColorB = 0
		d.verts[i].ColorA = 1.0 / 255
	}
	var op ebiten.DrawTrianglesOptions
	op.Blend = ebiten.Blend{
		BlendFactorSourceRGB:        ebiten.BlendFactorOne,
		BlendFactorSourceAlpha:      ebiten.BlendFactorOne,
		BlendFactorDestinationRGB:   ebiten.BlendFactorOne,
		BlendFactorDestinationAlpha: ebiten.BlendFactorOne,
		BlendOperationRGB:           ebiten.BlendOperationAdd,
		BlendOperationAlpha:         ebiten.BlendOperationAdd,
	}
	if d.stencil.OnPass == StencilDecr {
		op.Blend.BlendOperationRGB = ebiten.BlendOperationReverseSubtract
		op.Blend.BlendOperationAlpha = ebiten.BlendOperationReverseSubtract
	}
	cov.DrawTriangles(d.verts, d.inds, src, &op)
}

// drawStencilTested renders geometry through a scratch image, then
// composites only the pixels whose coverage level equals the reference.
func (d *EbitenDevice) drawStencilTested(src *ebiten.Image, target *ebiten.Image) {
	scratch := d.scratchImage()
	scratch.Clear()

	var op ebiten.DrawTrianglesOptions
	op.Filter = triFilter(src != d.whiteImage)
	scratch.DrawTriangles(d.verts, d.inds, src, &op)

	b := target.Bounds()
	var shaderOp ebiten.DrawRectShaderOptions
	shaderOp.Images[0] = scratch
	shaderOp.Images[1] = d.coverageImage()
	shaderOp.Uniforms = map[string]any{"Ref": float32(d.stencil.Ref)}
	shaderOp.Blend = d.blend
	d.clippedTarget(target).DrawRectShader(b.Dx(), b.Dy(), d.maskShader, &shaderOp)
}

func (d *EbitenDevice) Present() {
	// Ebitengine presents from its own game loop.
}

func (d *EbitenDevice) OnContextLost(fn func()) {
	_ = fn // Ebitengine restores lost GPU state itself; the callback never fires.
}

// --- helpers ---

func (d *EbitenDevice) targetImage() *ebiten.Image {
	if d.target == nil {
		if d.screen == nil {
			panic("ember: EbitenDevice has no screen; call SetScreen from Draw")
		}
		return d.screen
	}
	img, ok := d.textures[d.target.Handle]
	if !ok {
		panic(fmt.Sprintf("ember: render target texture %d does not exist", d.target.Handle))
	}
	return img
}

func (d *EbitenDevice) targetKey() TextureID {
	if d.target == nil {
		return 0
	}
	return d.target.Handle
}

func (d *EbitenDevice) coverageImage() *ebiten.Image {
	return d.sizedAux(d.coverage)
}

func (d *EbitenDevice) scratchImage() *ebiten.Image {
	return d.sizedAux(d.scratch)
}

func (d *EbitenDevice) sizedAux(m map[TextureID]*ebiten.Image) *ebiten.Image {
	key := d.targetKey()
	b := d.targetImage().Bounds()
	img := m[key]
	if img == nil || img.Bounds().Dx() != b.Dx() || img.Bounds().Dy() != b.Dy() {
		if img != nil {
			img.Deallocate()
		}
		img = ebiten.NewImage(b.Dx(), b.Dy())
		m[key] = img
	}
	return img
}

// clippedTarget applies the scissor rect (stage coordinates) as a SubImage
// of the target, scaled to the target's pixel size.
func (d *EbitenDevice) clippedTarget(target *ebiten.Image) *ebiten.Image {
	if d.scissor == nil {
		return target
	}
	b := target.Bounds()
	sx := float64(b.Dx()) / d.stageW
	sy := float64(b.Dy()) / d.stageH
	r := image.Rect(
		b.Min.X+int(d.scissor.X*sx),
		b.Min.Y+int(d.scissor.Y*sy),
		b.Min.X+int((d.scissor.X+d.scissor.W)*sx),
		b.Min.Y+int((d.scissor.Y+d.scissor.H)*sy),
	)
	return target.SubImage(r.Intersect(b)).(*ebiten.Image)
}

func triFilter(smoothing bool) ebiten.Filter {
	if smoothing {
		return ebiten.FilterLinear
	}
	return ebiten.FilterNearest
}

// ebitenBlend maps ember blend modes onto Ebitengine blend factors.
func ebitenBlend(mode BlendMode) ebiten.Blend {
	switch mode {
	case BlendAdd:
		return ebiten.BlendLighter
	case BlendMultiply:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorDestinationColor,
			BlendFactorSourceAlpha:      ebiten.BlendFactorDestinationAlpha,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceAlpha,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case BlendScreen:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorOne,
			BlendFactorSourceAlpha:      ebiten.BlendFactorOne,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceColor,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case BlendErase:
		return ebiten.BlendDestinationOut
	case BlendBelow:
		return ebiten.BlendDestinationOver
	case BlendNone:
		return ebiten.BlendCopy
	default:
		return ebiten.BlendSourceOver
	}
}
