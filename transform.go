package ember

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// identityTransform is the identity affine matrix.
var identityTransform = [6]float64{1, 0, 0, 1, 0, 0}

// computeLocalTransform computes the local affine matrix from the node's
// transform properties. Returns [a, b, c, d, tx, ty].
//
// Composition order:
//
//	Translate(-PivotX, -PivotY) -> Scale -> Skew -> Rotate -> Translate(X, Y)
func computeLocalTransform(n *Node) [6]float64 {
	sx := n.scaleX
	sy := n.scaleY

	sin, cos := math.Sincos(n.rotation)

	var tanSkewX, tanSkewY float64
	if n.skewX != 0 {
		tanSkewX = math.Tan(n.skewX)
	}
	if n.skewY != 0 {
		tanSkewY = math.Tan(n.skewY)
	}

	// After Scale * Translate(-pivot):
	//   a=sx, b=0, c=0, d=sy, tx=-px*sx, ty=-py*sy
	//
	// After Skew:
	a := sx
	b := tanSkewY * sx
	c := tanSkewX * sy
	d := sy

	px := n.pivotX
	py := n.pivotY
	preTx := -px*sx - tanSkewX*py*sy
	preTy := -tanSkewY*px*sx - py*sy

	// After Rotate:
	ra := cos*a - sin*b
	rb := sin*a + cos*b
	rc := cos*c - sin*d
	rd := sin*c + cos*d
	rtx := cos*preTx - sin*preTy
	rty := sin*preTx + cos*preTy

	// After Translate(X, Y):
	return [6]float64{ra, rb, rc, rd, rtx + n.x, rty + n.y}
}

// multiplyAffine multiplies two 2D affine matrices: result = parent * child.
//
//	Matrix layout: [a, b, c, d, tx, ty]
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
func multiplyAffine(p, c [6]float64) [6]float64 {
	return [6]float64{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// invertAffine computes the inverse of a 2D affine matrix.
// Returns the identity matrix if the matrix is singular (determinant ≈ 0).
func invertAffine(m [6]float64) [6]float64 {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return identityTransform
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return [6]float64{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// transformBounds returns the axis-aligned bounding box of rect after
// transforming its four corners by m.
func transformBounds(m [6]float64, rect Rect) Rect {
	x0, y0 := transformPoint(m, rect.X, rect.Y)
	x1, y1 := transformPoint(m, rect.X+rect.W, rect.Y)
	x2, y2 := transformPoint(m, rect.X, rect.Y+rect.H)
	x3, y3 := transformPoint(m, rect.X+rect.W, rect.Y+rect.H)
	minX := min(min(x0, x1), min(x2, x3))
	minY := min(min(y0, y1), min(y2, y3))
	maxX := max(max(x0, x1), max(x2, x3))
	maxY := max(max(y0, y1), max(y2, y3))
	return Rect{minX, minY, maxX - minX, maxY - minY}
}

// --- 3D matrices ---
//
// 3D math uses mgl32 (column-major, column-vector convention: world = M * p).
// The 2D affine layer stays in float64; conversion happens only at the 2D→3D
// upgrade boundary in RenderState.

// affineToMat4 embeds a 2D affine matrix into a 4x4 matrix acting on the
// xy-plane (z passes through unchanged).
func affineToMat4(m [6]float64) mgl32.Mat4 {
	out := mgl32.Ident4()
	out[0] = float32(m[0])  // col 0, row 0 = a
	out[1] = float32(m[1])  // col 0, row 1 = b
	out[4] = float32(m[2])  // col 1, row 0 = c
	out[5] = float32(m[3])  // col 1, row 1 = d
	out[12] = float32(m[4]) // col 3, row 0 = tx
	out[13] = float32(m[5]) // col 3, row 1 = ty
	return out
}

// composeTransform3D builds a node's local 4x4 transform from its 2D
// properties plus the 3D extension (z, rotationX/Y, scaleZ, pivotZ).
//
// Composition order mirrors the 2D layer:
//
//	Translate(-pivot) -> Scale -> RotateX -> RotateY -> RotateZ -> Translate(x, y, z)
func composeTransform3D(n *Node) mgl32.Mat4 {
	t := n.threeD
	m := mgl32.Translate3D(float32(-n.pivotX), float32(-n.pivotY), float32(-t.PivotZ))
	m = mgl32.Scale3D(float32(n.scaleX), float32(n.scaleY), float32(t.ScaleZ)).Mul4(m)
	if t.RotationX != 0 {
		m = mgl32.HomogRotate3DX(float32(t.RotationX)).Mul4(m)
	}
	if t.RotationY != 0 {
		m = mgl32.HomogRotate3DY(float32(t.RotationY)).Mul4(m)
	}
	if n.rotation != 0 {
		m = mgl32.HomogRotate3DZ(float32(n.rotation)).Mul4(m)
	}
	return mgl32.Translate3D(float32(n.x), float32(n.y), float32(t.Z)).Mul4(m)
}

// perspectiveProjection builds the stage projection matrix for the viewport
// (x, y, width, height) of a stage sized stageW x stageH, viewed by a camera
// at cameraPos (z negative, in front of the stage plane).
//
// The matrix is constructed so that the near plane coincides with the stage's
// xy-plane: a point (px, py, 0) maps back to exactly (px, py) after the
// perspective divide and viewport mapping, so objects at z=0 render at their
// literal 2D size. Derivation (similar triangles, f = |cameraPos.z|):
//
//	screen = camera.xy + (p.xy - camera.xy) * f / (f + p.z)
//
// Points with z > 0 are farther from the camera and shrink toward the
// camera's stage-plane intersection. The far plane sits at 20*f.
func perspectiveProjection(x, y, width, height float64, cameraPos Vec3) mgl32.Mat4 {
	f := math.Abs(cameraPos.Z)
	if f == 0 {
		f = 1
	}
	cx := cameraPos.X
	cy := cameraPos.Y

	var m mgl32.Mat4 // zero; filled per element (column-major: m[col*4+row])

	// clip.x = (2/w)*px + ((2cx-(2x+w))/(w*f))*pz - (2x+w)/w
	m[0] = float32(2 / width)
	m[8] = float32((2*cx - (2*x + width)) / (width * f))
	m[12] = float32(-(2*x + width) / width)

	// clip.y = -(2/h)*py + (((2y+h)-2cy)/(h*f))*pz + (2y+h)/h   [y-axis flip]
	m[5] = float32(-2 / height)
	m[9] = float32(((2*y + height) - 2*cy) / (height * f))
	m[13] = float32((2*y + height) / height)

	// clip.z maps pz=0 (stage plane) to depth -1 and pz=19f (far) to +1.
	m[10] = float32(21 / (19 * f))
	m[14] = -1

	// clip.w = 1 + pz/f
	m[11] = float32(1 / f)
	m[15] = 1

	return m
}

// projectPoint applies a 4x4 matrix to a stage-space point and performs the
// perspective divide. Used by the CPU-projecting ebiten backend and by tests.
func projectPoint(m mgl32.Mat4, x, y, z float64) (float64, float64, float64) {
	v := m.Mul4x1(mgl32.Vec4{float32(x), float32(y), float32(z), 1})
	w := float64(v[3])
	if w == 0 {
		w = 1
	}
	return float64(v[0]) / w, float64(v[1]) / w, float64(v[2]) / w
}
