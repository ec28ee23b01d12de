package ember

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
// Premultiplication occurs at render submission time.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default tint (no color modification).
var ColorWhite = Color{1, 1, 1, 1}

// ColorBlack is opaque black, the default stage background.
var ColorBlack = Color{0, 0, 0, 1}

// Vec2 is a 2D vector used for positions, offsets, and sizes throughout the API.
type Vec2 struct {
	X, Y float64
}

// Vec3 is a 3D vector. Used for the stage camera position and 3D transforms.
type Vec3 struct {
	X, Y, Z float64
}

// Rect is an axis-aligned rectangle. The coordinate system has its origin at
// the top-left, with Y increasing downward.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W &&
		y >= r.Y && y <= r.Y+r.H
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.W &&
		r.X+r.W >= other.X &&
		r.Y <= other.Y+other.H &&
		r.Y+r.H >= other.Y
}

// Intersection returns the overlapping region of r and other.
// Returns a zero-size rect at the clamped origin when they don't overlap.
func (r Rect) Intersection(other Rect) Rect {
	x0 := max(r.X, other.X)
	y0 := max(r.Y, other.Y)
	x1 := min(r.X+r.W, other.X+other.W)
	y1 := min(r.Y+r.H, other.Y+other.H)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.W <= 0 || r.H <= 0
}

// BlendMode selects a compositing operation. Each backend maps these to its
// native blend factors (see device_opengl.go and device_ebiten.go).
type BlendMode uint8

const (
	// BlendAuto inherits the blend mode from the parent render state.
	// Only meaningful on nodes; a RenderState never holds BlendAuto.
	BlendAuto     BlendMode = iota
	BlendNormal             // source-over (standard premultiplied alpha blending)
	BlendAdd                // additive / lighter
	BlendMultiply           // multiply (source * destination; only darkens)
	BlendScreen             // screen (1 - (1-src)*(1-dst); only brightens)
	BlendErase              // destination-out (punch transparent holes)
	BlendBelow              // destination-over (draw behind existing content)
	BlendNone               // opaque copy (skip blending)
)

// CullMode selects triangle back-face culling for 3D content.
type CullMode uint8

const (
	CullNone  CullMode = iota // draw all triangles (default)
	CullBack                  // discard back-facing triangles
	CullFront                 // discard front-facing triangles
)

// NodeType distinguishes rendering behavior for a Node.
type NodeType uint8

const (
	NodeTypeContainer NodeType = iota // group node with no visual output
	NodeTypeQuad                      // solid-color (or single-texture) rectangle
	NodeTypeImage                     // textured quad sized to its texture
	NodeTypeMesh                      // arbitrary indexed triangles
	NodeTypeSprite3D                  // container rendered through a 3D transform
	NodeTypeStage                     // the root container (exactly one per Stage)
)
