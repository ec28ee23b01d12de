package ember

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

const epsilon = 1e-6

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

// fakeDevice records every draw call with the device state in effect, so
// tests can diff the draw stream of one frame against another. Cache
// correctness is exactly "the spliced frame produces the same stream as the
// fresh frame", and the fake makes that a string comparison.
type fakeDevice struct {
	contextID uintptr

	target    *Texture
	scissor   *Rect
	blend     BlendMode
	stencil   StencilState
	colorMask bool

	draws    []fakeDraw
	events   []string
	programs int
	textures int
	onLost   func()
}

type fakeDraw struct {
	tex       TextureID
	program   ProgramID
	blend     BlendMode
	target    TextureID
	scissor   string
	stencil   StencilState
	colorMask bool
	vertexSig string
	numInds   int
}

func newFakeDevice() *fakeDevice {
	nextContextID++
	return &fakeDevice{contextID: nextContextID, colorMask: true}
}

func (d *fakeDevice) ContextID() uintptr { return d.contextID }

func (d *fakeDevice) CompileProgram(name, vertexSrc, fragmentSrc string) (ProgramID, error) {
	if strings.Contains(fragmentSrc, "ERROR") {
		return 0, fmt.Errorf("compile error in %q", name)
	}
	d.programs++
	return ProgramID(d.programs), nil
}

func (d *fakeDevice) CreateTexture(width, height int, renderTarget bool, antiAlias int, depthStencil bool) (TextureID, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	d.textures++
	return TextureID(d.textures), nil
}

func (d *fakeDevice) DestroyTexture(id TextureID) {
	d.events = append(d.events, fmt.Sprintf("destroy %d", id))
}

func (d *fakeDevice) SetRenderTarget(t *Texture) { d.target = t }
func (d *fakeDevice) SetScissor(r *Rect)         { d.scissor = r }
func (d *fakeDevice) SetBlend(mode BlendMode)    { d.blend = mode }
func (d *fakeDevice) SetStencil(s StencilState)  { d.stencil = s }
func (d *fakeDevice) SetColorMask(enabled bool)  { d.colorMask = enabled }

func (d *fakeDevice) Clear(c Color) {
	d.events = append(d.events, fmt.Sprintf("clear %.2f,%.2f,%.2f,%.2f", c.R, c.G, c.B, c.A))
}

func (d *fakeDevice) DrawIndexed(call *DrawCall) {
	var sig strings.Builder
	for i := range call.Vertices {
		v := &call.Vertices[i]
		fmt.Fprintf(&sig, "(%.2f,%.2f,%.2f)", v.X, v.Y, v.A)
	}
	rec := fakeDraw{
		program:   call.Program,
		blend:     d.blend,
		stencil:   d.stencil,
		colorMask: d.colorMask,
		vertexSig: sig.String(),
		numInds:   len(call.Indices),
	}
	if call.Texture != nil {
		rec.tex = call.Texture.Handle
	}
	if d.target != nil {
		rec.target = d.target.Handle
	}
	if d.scissor != nil {
		rec.scissor = fmt.Sprintf("%.1f,%.1f,%.1f,%.1f", d.scissor.X, d.scissor.Y, d.scissor.W, d.scissor.H)
	}
	d.draws = append(d.draws, rec)
}

func (d *fakeDevice) Present() {
	d.events = append(d.events, "present")
}

func (d *fakeDevice) OnContextLost(fn func()) { d.onLost = fn }

// drawStream flattens the recorded draws into comparable strings.
func (d *fakeDevice) drawStream() []string {
	out := make([]string, len(d.draws))
	for i, r := range d.draws {
		out[i] = fmt.Sprintf("tex=%d prog=%d blend=%d target=%d scissor=%q stencil=%v/%d mask=%v inds=%d %s",
			r.tex, r.program, r.blend, r.target, r.scissor,
			r.stencil.Enabled, r.stencil.Ref, r.colorMask, r.numInds, r.vertexSig)
	}
	return out
}

func (d *fakeDevice) reset() {
	d.draws = d.draws[:0]
	d.events = d.events[:0]
}

// --- shared test helpers ---

func newTestScene(w, h float64) (*Stage, *Painter, *fakeDevice) {
	dev := newFakeDevice()
	stage := NewStage(w, h, ColorBlack)
	painter := NewPainter(dev)
	return stage, painter, dev
}

// runFrame drives one full frame and returns the device's draw stream for it.
func runFrame(t *testing.T, stage *Stage, painter *Painter, dev *fakeDevice) []string {
	t.Helper()
	dev.reset()
	painter.NextFrame(stage.NextFrame())
	stage.AdvanceTime(1.0 / 60)
	stage.Render(painter)
	painter.FinishFrame()
	painter.Present()
	return dev.drawStream()
}

func assertStreamsEqual(t *testing.T, got, want []string, label string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d draws, want %d\ngot:  %v\nwant: %v", label, len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s: draw %d differs\ngot:  %s\nwant: %s", label, i, got[i], want[i])
		}
	}
}

func expectPanic(t *testing.T, substr string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", substr)
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, substr) {
			t.Errorf("panic message should contain %q, got: %s", substr, msg)
		}
	}()
	fn()
}
