package ember

import "fmt"

// Texture is a handle to a GPU texture. Textures are created through a
// Device (render textures here; regular image upload is the responsibility
// of external loaders, which construct a Texture around a device handle).
type Texture struct {
	Handle        TextureID
	Width, Height float64
	Smoothing     bool

	// Render-target options, meaningful when the texture is used as
	// RenderState.renderTarget.
	AntiAlias    int
	DepthStencil bool

	device   Device
	disposed bool
}

// NewTexture wraps an existing device texture handle. Panics on zero size.
// The handle stays owned by whoever created it; Dispose is a no-op.
func NewTexture(handle TextureID, width, height float64) *Texture {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("ember: zero-size texture (%vx%v)", width, height))
	}
	return &Texture{Handle: handle, Width: width, Height: height}
}

// NewRenderTexture allocates a texture that can be bound as a render target.
// antiAlias is the requested sample count (0 = none); depthStencil requests
// an attached depth/stencil buffer, required for stencil masking inside the
// target. Panics on zero size; allocation failure is returned as an error.
func NewRenderTexture(device Device, width, height int, antiAlias int, depthStencil bool) (*Texture, error) {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("ember: zero-size render texture (%dx%d)", width, height))
	}
	handle, err := device.CreateTexture(width, height, true, antiAlias, depthStencil)
	if err != nil {
		return nil, err
	}
	return &Texture{
		Handle:       handle,
		Width:        float64(width),
		Height:       float64(height),
		AntiAlias:    antiAlias,
		DepthStencil: depthStencil,
		device:       device,
	}, nil
}

// Dispose releases the underlying device texture. Safe to call twice.
// Only textures created through NewRenderTexture own their handle; wrapped
// textures are released by whoever created the handle.
func (t *Texture) Dispose() {
	if t.disposed || t.device == nil {
		return
	}
	t.disposed = true
	t.device.DestroyTexture(t.Handle)
}

// IsDisposed reports whether the texture has been disposed.
func (t *Texture) IsDisposed() bool {
	return t.disposed
}
