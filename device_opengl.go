package ember

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const glVertexStride = int32(unsafe.Sizeof(Vertex{}))

const glVertexShaderSrc = `#version 410 core
layout(location = 0) in vec2 position;
layout(location = 1) in vec2 texCoord;
layout(location = 2) in vec4 color;
uniform mat4 mvp;
out vec2 vTexCoord;
out vec4 vColor;
void main() {
	gl_Position = mvp * vec4(position, 0.0, 1.0);
	vTexCoord = texCoord;
	vColor = color;
}` + "\x00"

const glTexturedFragmentSrc = `#version 410 core
uniform sampler2D tex;
in vec2 vTexCoord;
in vec4 vColor;
out vec4 fragColor;
void main() {
	fragColor = texture(tex, vTexCoord) * vColor;
}` + "\x00"

const glColorFragmentSrc = `#version 410 core
in vec4 vColor;
out vec4 fragColor;
void main() {
	fragColor = vColor;
}` + "\x00"

type glTexture struct {
	tex    uint32
	fbo    uint32 // 0 when not render-target capable
	rbo    uint32 // depth24/stencil8 renderbuffer, 0 when absent
	width  int
	height int
}

// OpenGLDevice implements Device on an OpenGL 4.1 core context. The caller
// owns the window and context (GLFW in the examples): the context must be
// current on the calling goroutine, and present is invoked from Present
// (typically window.SwapBuffers). One dynamic VAO/VBO/EBO triple carries
// every draw; batching upstream keeps the upload count low.
type OpenGLDevice struct {
	contextID uintptr
	present   func()

	stageW, stageH    float64
	fbWidth, fbHeight int

	vao, vbo, ebo uint32

	texturedProgram uint32
	colorProgram    uint32

	textures    map[TextureID]*glTexture
	nextTexture TextureID

	target  *Texture
	scissor *Rect

	onLost func()
}

// NewOpenGLDevice initializes GL state for a stage of the given logical size
// rendered into a framebuffer of fbWidth x fbHeight pixels. The GL context
// must already be current.
func NewOpenGLDevice(stageW, stageH float64, fbWidth, fbHeight int, present func()) (*OpenGLDevice, error) {
	if stageW <= 0 || stageH <= 0 {
		panic("ember: device stage size must be positive")
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}

	nextContextID++
	d := &OpenGLDevice{
		contextID:   nextContextID,
		present:     present,
		stageW:      stageW,
		stageH:      stageH,
		fbWidth:     fbWidth,
		fbHeight:    fbHeight,
		textures:    map[TextureID]*glTexture{},
		nextTexture: 1,
	}

	var err error
	d.texturedProgram, err = compileGLProgram("ember.textured", glVertexShaderSrc, glTexturedFragmentSrc)
	if err != nil {
		return nil, err
	}
	d.colorProgram, err = compileGLProgram("ember.color", glVertexShaderSrc, glColorFragmentSrc)
	if err != nil {
		return nil, err
	}

	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)
	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.GenBuffers(1, &d.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, d.ebo)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, glVertexStride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, glVertexStride, gl.PtrOffset(8))
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 4, gl.FLOAT, false, glVertexStride, gl.PtrOffset(16))

	gl.Enable(gl.BLEND)
	gl.Disable(gl.DEPTH_TEST)
	gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
	return d, nil
}

// SetFramebufferSize updates the backing framebuffer size after a window
// resize.
func (d *OpenGLDevice) SetFramebufferSize(width, height int) {
	d.fbWidth, d.fbHeight = width, height
	if d.target == nil {
		gl.Viewport(0, 0, int32(width), int32(height))
	}
}

// NotifyContextLost invokes the registered context-loss callback. Desktop GL
// contexts rarely go away, but embedders whose windowing layer reports a
// loss call this after recreating the context.
func (d *OpenGLDevice) NotifyContextLost() {
	if d.onLost != nil {
		d.onLost()
	}
}

func (d *OpenGLDevice) ContextID() uintptr {
	return d.contextID
}

func (d *OpenGLDevice) CompileProgram(name, vertexSrc, fragmentSrc string) (ProgramID, error) {
	prog, err := compileGLProgram(name, vertexSrc+"\x00", fragmentSrc+"\x00")
	if err != nil {
		return 0, err
	}
	return ProgramID(prog), nil
}

func (d *OpenGLDevice) CreateTexture(width, height int, renderTarget bool, antiAlias int, depthStencil bool) (TextureID, error) {
	// Multisampled targets would need a resolve pass this backend does not
	// implement; the requested sample count is accepted and ignored.
	_ = antiAlias
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	t := &glTexture{width: width, height: height}

	gl.GenTextures(1, &t.tex)
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	// Filtering follows each draw call's Smoothing flag (see DrawIndexed).
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	if renderTarget {
		gl.GenFramebuffers(1, &t.fbo)
		gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.tex, 0)
		if depthStencil {
			gl.GenRenderbuffers(1, &t.rbo)
			gl.BindRenderbuffer(gl.RENDERBUFFER, t.rbo)
			gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH24_STENCIL8, int32(width), int32(height))
			gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_STENCIL_ATTACHMENT, gl.RENDERBUFFER, t.rbo)
		}
		status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		if status != gl.FRAMEBUFFER_COMPLETE {
			d.releaseGLTexture(t)
			return 0, fmt.Errorf("incomplete framebuffer (status 0x%x)", status)
		}
	}

	id := d.nextTexture
	d.nextTexture++
	d.textures[id] = t
	return id, nil
}

func (d *OpenGLDevice) DestroyTexture(id TextureID) {
	if t, ok := d.textures[id]; ok {
		d.releaseGLTexture(t)
		delete(d.textures, id)
	}
}

func (d *OpenGLDevice) releaseGLTexture(t *glTexture) {
	if t.rbo != 0 {
		gl.DeleteRenderbuffers(1, &t.rbo)
	}
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
	}
	gl.DeleteTextures(1, &t.tex)
}

func (d *OpenGLDevice) SetRenderTarget(t *Texture) {
	d.target = t
	if t == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.Viewport(0, 0, int32(d.fbWidth), int32(d.fbHeight))
		return
	}
	glt, ok := d.textures[t.Handle]
	if !ok || glt.fbo == 0 {
		panic(fmt.Sprintf("ember: texture %d is not a render target", t.Handle))
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, glt.fbo)
	gl.Viewport(0, 0, int32(glt.width), int32(glt.height))
}

func (d *OpenGLDevice) SetScissor(r *Rect) {
	d.scissor = r
	if r == nil {
		gl.Disable(gl.SCISSOR_TEST)
		return
	}
	tw, th := d.targetSize()
	sx := float64(tw) / d.stageW
	sy := float64(th) / d.stageH
	// glScissor origin is the lower-left corner.
	gl.Enable(gl.SCISSOR_TEST)
	gl.Scissor(
		int32(r.X*sx),
		int32(float64(th)-(r.Y+r.H)*sy),
		int32(r.W*sx),
		int32(r.H*sy),
	)
}

func (d *OpenGLDevice) targetSize() (int, int) {
	if d.target == nil {
		return d.fbWidth, d.fbHeight
	}
	glt := d.textures[d.target.Handle]
	return glt.width, glt.height
}

func (d *OpenGLDevice) SetBlend(mode BlendMode) {
	switch mode {
	case BlendAdd:
		gl.BlendFunc(gl.ONE, gl.ONE)
	case BlendMultiply:
		gl.BlendFunc(gl.DST_COLOR, gl.ONE_MINUS_SRC_ALPHA)
	case BlendScreen:
		gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_COLOR)
	case BlendErase:
		gl.BlendFunc(gl.ZERO, gl.ONE_MINUS_SRC_ALPHA)
	case BlendBelow:
		gl.BlendFunc(gl.ONE_MINUS_DST_ALPHA, gl.DST_ALPHA)
	case BlendNone:
		gl.BlendFunc(gl.ONE, gl.ZERO)
	default: // premultiplied source-over
		gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	}
}

func (d *OpenGLDevice) SetStencil(s StencilState) {
	if !s.Enabled {
		gl.Disable(gl.STENCIL_TEST)
		return
	}
	gl.Enable(gl.STENCIL_TEST)
	fn := uint32(gl.ALWAYS)
	if s.Compare == StencilEqual {
		fn = gl.EQUAL
	}
	gl.StencilFunc(fn, int32(s.Ref), 0xff)
	op := uint32(gl.KEEP)
	switch s.OnPass {
	case StencilIncr:
		op = gl.INCR
	case StencilDecr:
		op = gl.DECR
	}
	gl.StencilOp(gl.KEEP, gl.KEEP, op)
}

func (d *OpenGLDevice) SetColorMask(enabled bool) {
	gl.ColorMask(enabled, enabled, enabled, enabled)
}

func (d *OpenGLDevice) Clear(c Color) {
	gl.ClearColor(float32(c.R), float32(c.G), float32(c.B), float32(c.A))
	gl.ClearStencil(0)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.STENCIL_BUFFER_BIT)
}

func (d *OpenGLDevice) DrawIndexed(call *DrawCall) {
	if len(call.Vertices) == 0 || len(call.Indices) == 0 {
		return
	}

	prog := uint32(call.Program)
	if prog == 0 {
		if call.Texture != nil {
			prog = d.texturedProgram
		} else {
			prog = d.colorProgram
		}
	}
	gl.UseProgram(prog)

	mvp := call.MVP
	gl.UniformMatrix4fv(gl.GetUniformLocation(prog, gl.Str("mvp\x00")), 1, false, &mvp[0])

	if call.Texture != nil {
		glt, ok := d.textures[call.Texture.Handle]
		if !ok {
			panic(fmt.Sprintf("ember: draw with unknown texture %d", call.Texture.Handle))
		}
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, glt.tex)
		filter := int32(gl.NEAREST)
		if call.Smoothing {
			filter = gl.LINEAR
		}
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	}

	switch call.Culling {
	case CullBack:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	case CullFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Disable(gl.CULL_FACE)
	}

	gl.BindVertexArray(d.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(call.Vertices)*int(glVertexStride),
		unsafe.Pointer(&call.Vertices[0]), gl.STREAM_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, d.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(call.Indices)*2,
		unsafe.Pointer(&call.Indices[0]), gl.STREAM_DRAW)
	gl.DrawElements(gl.TRIANGLES, int32(len(call.Indices)), gl.UNSIGNED_SHORT, nil)
}

func (d *OpenGLDevice) Present() {
	if d.present != nil {
		d.present()
	}
}

func (d *OpenGLDevice) OnContextLost(fn func()) {
	d.onLost = fn
}

// compileGLProgram compiles and links a GLSL program. Sources must be
// NUL-terminated.
func compileGLProgram(name, vertexSrc, fragmentSrc string) (uint32, error) {
	compile := func(kind uint32, src, stage string) (uint32, error) {
		shader := gl.CreateShader(kind)
		csrc, free := gl.Strs(src)
		gl.ShaderSource(shader, 1, csrc, nil)
		free()
		gl.CompileShader(shader)
		var status int32
		gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
		if status == gl.FALSE {
			var logLength int32
			gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
			log := make([]byte, logLength+1)
			gl.GetShaderInfoLog(shader, logLength, nil, &log[0])
			gl.DeleteShader(shader)
			return 0, fmt.Errorf("%s: %s shader compile error: %s", name, stage, log)
		}
		return shader, nil
	}

	v, err := compile(gl.VERTEX_SHADER, vertexSrc, "vertex")
	if err != nil {
		return 0, err
	}
	f, err := compile(gl.FRAGMENT_SHADER, fragmentSrc, "fragment")
	if err != nil {
		gl.DeleteShader(v)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, v)
	gl.AttachShader(program, f)
	gl.LinkProgram(program)
	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	gl.DeleteShader(v)
	gl.DeleteShader(f)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := make([]byte, logLength+1)
		gl.GetProgramInfoLog(program, logLength, nil, &log[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("%s: program link error: %s", name, log)
	}
	return program, nil
}
