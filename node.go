package ember

import "fmt"

// --- ID counter ---

// nodeIDCounter is a plain counter (no atomic — ember is single-threaded).
var nodeIDCounter uint32

func nextNodeID() uint32 {
	nodeIDCounter++
	return nodeIDCounter
}

// excludedTokenFrame is an unreachable tokenFrame value. A node carrying it
// can never satisfy the cache-hit test, forcing a full re-render next frame.
const excludedTokenFrame = ^uint64(0)

// ThreeD is the optional 3D capability attached to a Sprite3D node.
// When present, the node's subtree renders through a 4x4 modelview matrix
// (upgrading the render state from 2D) and is excluded from the render cache.
type ThreeD struct {
	Z         float64
	RotationX float64
	RotationY float64
	ScaleZ    float64
	PivotZ    float64
}

// Node is the fundamental scene graph element. A single flat struct is used
// for all node variants to avoid interface dispatch on the hot path; Type
// selects the rendering behavior.
type Node struct {
	// Identity
	ID   uint32
	Name string
	Type NodeType

	// Hierarchy. parent is a non-owning back-reference; containers own
	// their children exclusively.
	parent   *Node
	children []*Node

	// Transform (local)
	x, y         float64
	scaleX       float64
	scaleY       float64
	rotation     float64
	skewX, skewY float64
	pivotX       float64
	pivotY       float64

	// Appearance
	alpha     float64
	visible   bool
	touchable bool
	blendMode BlendMode // BlendAuto inherits the parent state's mode

	// Geometry (quad/image/mesh variants)
	mesh Mesh

	// Optional capabilities
	threeD *ThreeD
	mask   *Node // restricts where this node's pixels are visible
	maskee *Node // set on the mask node; a mask is never drawn directly
	filter Filter

	// Render-cache bookkeeping. Stamps hold the frame counter value at the
	// time of the change; tokens record the node's draw-stream range from
	// the previous frame (see render.go).
	selfOrParentChangedFrame uint64
	childChangedFrame        uint64
	tokenFrame               uint64
	pushToken                BatchToken
	popToken                 BatchToken
	hasVisibleArea           bool

	// stageFrame is non-nil only on a Stage's root node and points at the
	// stage's frame counter. Dirty stamping walks up to it.
	stageFrame *uint64

	// Per-node callbacks (nil by default; zero cost when unused)
	OnAdded      func(n *Node, parent *Node)
	OnRemoved    func(n *Node, parent *Node)
	OnEnterFrame func(n *Node, dt float64)

	// Metadata
	UserData any

	disposed bool
}

// nodeDefaults sets the common default field values shared by all constructors.
func nodeDefaults(n *Node) {
	n.ID = nextNodeID()
	n.scaleX = 1
	n.scaleY = 1
	n.alpha = 1
	n.visible = true
	n.touchable = true
	n.hasVisibleArea = true
}

// NewContainer creates a container node with no visual representation.
func NewContainer(name string) *Node {
	n := &Node{Name: name, Type: NodeTypeContainer}
	nodeDefaults(n)
	return n
}

// NewQuad creates a w x h rectangle node filled with a solid color.
// Panics if the quad has zero area.
func NewQuad(name string, w, h float64, color Color) *Node {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("ember: zero-area quad (%vx%v)", w, h))
	}
	n := &Node{Name: name, Type: NodeTypeQuad, mesh: newQuadMesh(w, h, nil, color)}
	nodeDefaults(n)
	return n
}

// NewImage creates a quad node textured with tex and sized to it.
// Panics if tex is nil.
func NewImage(name string, tex *Texture) *Node {
	if tex == nil {
		panic("ember: NewImage requires a texture")
	}
	n := &Node{Name: name, Type: NodeTypeImage, mesh: newQuadMesh(tex.Width, tex.Height, tex, ColorWhite)}
	n.mesh.Smoothing = tex.Smoothing
	nodeDefaults(n)
	return n
}

// NewMeshNode creates a node that renders arbitrary indexed triangles.
// tex may be nil for solid vertex-colored geometry. Panics on degenerate
// geometry (fewer than one triangle, out-of-range indices).
func NewMeshNode(name string, vertices []Vertex, indices []uint16, tex *Texture) *Node {
	validateMesh(vertices, indices)
	n := &Node{
		Name: name,
		Type: NodeTypeMesh,
		mesh: Mesh{Vertices: vertices, Indices: indices, Texture: tex},
	}
	nodeDefaults(n)
	return n
}

// NewSprite3D creates a container whose subtree renders through a 3D
// transform. Rendering a Sprite3D upgrades the render state to 3D and
// excludes the subtree from the render cache (3D content interrupts 2D
// batching).
func NewSprite3D(name string) *Node {
	n := &Node{Name: name, Type: NodeTypeSprite3D, threeD: &ThreeD{ScaleZ: 1}}
	nodeDefaults(n)
	return n
}

// --- Transform & appearance accessors ---
//
// All mutators stamp the node with the current frame; direct field access is
// deliberately impossible because a missed stamp shows up as silent visual
// corruption, not an error.

func (n *Node) X() float64        { return n.x }
func (n *Node) Y() float64        { return n.y }
func (n *Node) ScaleX() float64   { return n.scaleX }
func (n *Node) ScaleY() float64   { return n.scaleY }
func (n *Node) Rotation() float64 { return n.rotation }
func (n *Node) SkewX() float64    { return n.skewX }
func (n *Node) SkewY() float64    { return n.skewY }
func (n *Node) PivotX() float64   { return n.pivotX }
func (n *Node) PivotY() float64   { return n.pivotY }
func (n *Node) Alpha() float64    { return n.alpha }
func (n *Node) Visible() bool     { return n.visible }
func (n *Node) Touchable() bool   { return n.touchable }

// BlendMode returns the node's blend mode (BlendAuto by default).
func (n *Node) BlendMode() BlendMode { return n.blendMode }

// ThreeD returns the node's 3D extension, or nil for 2D nodes.
// Mutating it requires a MarkRequiresRedraw call.
func (n *Node) ThreeD() *ThreeD { return n.threeD }

// SetPosition sets the node's local X and Y.
func (n *Node) SetPosition(x, y float64) {
	n.x = x
	n.y = y
	n.MarkRequiresRedraw()
}

// SetScale sets the node's ScaleX and ScaleY.
func (n *Node) SetScale(sx, sy float64) {
	n.scaleX = sx
	n.scaleY = sy
	n.MarkRequiresRedraw()
}

// SetRotation sets the node's rotation (in radians).
func (n *Node) SetRotation(r float64) {
	n.rotation = r
	n.MarkRequiresRedraw()
}

// SetSkew sets the node's SkewX and SkewY.
func (n *Node) SetSkew(sx, sy float64) {
	n.skewX = sx
	n.skewY = sy
	n.MarkRequiresRedraw()
}

// SetPivot sets the node's PivotX and PivotY.
func (n *Node) SetPivot(px, py float64) {
	n.pivotX = px
	n.pivotY = py
	n.MarkRequiresRedraw()
}

// SetAlpha sets the node's alpha.
func (n *Node) SetAlpha(a float64) {
	n.alpha = a
	n.MarkRequiresRedraw()
}

// SetVisible shows or hides the node and its subtree.
func (n *Node) SetVisible(v bool) {
	n.visible = v
	n.MarkRequiresRedraw()
}

// SetTouchable enables or disables hit testing for the node. Carried for
// external input systems; the render core ignores it.
func (n *Node) SetTouchable(t bool) {
	n.touchable = t
}

// SetBlendMode sets the node's blend mode. BlendAuto inherits the parent's.
func (n *Node) SetBlendMode(mode BlendMode) {
	n.blendMode = mode
	n.MarkRequiresRedraw()
}

// SetColor tints all vertices of a quad, image, or mesh node.
func (n *Node) SetColor(c Color) {
	n.mesh.SetColor(c)
	n.MarkRequiresRedraw()
}

// Mesh returns the node's geometry. Mutating vertices or indices requires a
// MarkRequiresRedraw call.
func (n *Node) Mesh() *Mesh { return &n.mesh }

// SetFilter attaches a filter, or removes one when f is nil. Filtered nodes
// are excluded from the render cache.
func (n *Node) SetFilter(f Filter) {
	n.filter = f
	n.MarkRequiresRedraw()
}

// Filter returns the attached filter, or nil.
func (n *Node) Filter() Filter { return n.filter }

// SetMask restricts the node's visible pixels to the area covered by mask's
// geometry. The mask is logically tied to this node for rendering but stays
// an independent tree member; it is never drawn directly. Passing nil
// removes the mask.
func (n *Node) SetMask(mask *Node) {
	if mask == n {
		panic("ember: node cannot mask itself")
	}
	if n.mask != nil {
		n.mask.maskee = nil
		n.mask.MarkRequiresRedraw()
	}
	n.mask = mask
	if mask != nil {
		if mask.maskee != nil {
			mask.maskee.SetMask(nil)
		}
		mask.maskee = n
		mask.MarkRequiresRedraw() // recomputes hasVisibleArea (now false)
	}
	n.MarkRequiresRedraw()
}

// Mask returns the node's mask, or nil.
func (n *Node) Mask() *Node { return n.mask }

// --- Dirty stamping ---

// parentOrMaskee returns the node dirtiness propagates through: the parent,
// or for a mask node the node it masks.
func (n *Node) parentOrMaskee() *Node {
	if n.parent != nil {
		return n.parent
	}
	return n.maskee
}

// currentFrame walks up to the root and returns the stage's frame counter,
// or 0 when the node is not attached to a stage.
func (n *Node) currentFrame() uint64 {
	for p := n; p != nil; p = p.parentOrMaskee() {
		if p.stageFrame != nil {
			return *p.stageFrame
		}
	}
	return 0
}

// MarkRequiresRedraw stamps the node with the current frame, recomputes its
// visible-area flag, and propagates the change upward. The walk stops at the
// first ancestor already stamped this frame, bounding total propagation work
// to one visit per ancestor per frame. Called by every mutator; call it
// yourself after mutating Mesh or ThreeD data directly.
func (n *Node) MarkRequiresRedraw() {
	frame := n.currentFrame()
	n.selfOrParentChangedFrame = frame
	n.hasVisibleArea = n.alpha != 0 && n.visible && n.maskee == nil &&
		n.scaleX != 0 && n.scaleY != 0
	for p := n.parentOrMaskee(); p != nil && p.childChangedFrame != frame; p = p.parentOrMaskee() {
		p.childChangedFrame = frame
	}
}

// HasVisibleArea reports whether the node can produce any visible pixels.
// False when alpha is 0, the node is invisible, a scale factor is 0, or the
// node is serving as another node's mask.
func (n *Node) HasVisibleArea() bool {
	return n.hasVisibleArea
}

// --- Tree manipulation ---

// AddChild appends child to this node's children (painted last, on top).
// If child already has a parent, it is removed from that parent first.
// Panics if child is nil or child is an ancestor of this node (cycle).
func (n *Node) AddChild(child *Node) {
	n.AddChildAt(child, len(n.children))
}

// AddChildAt inserts child at the given index in paint order.
// Same reparenting and cycle-check behavior as AddChild.
func (n *Node) AddChildAt(child *Node, index int) {
	if child == nil {
		panic("ember: cannot add nil child")
	}
	if debugEnabled {
		debugCheckDisposed(n, "AddChildAt (parent)")
		debugCheckDisposed(child, "AddChildAt (child)")
		debugCheckTreeDepth(n)
	}
	if isAncestor(child, n) {
		panic("ember: adding child would create a cycle")
	}
	if child.parent != nil {
		child.parent.removeChildByPtr(child)
		index = min(index, len(n.children))
	}
	if index < 0 || index > len(n.children) {
		panic("ember: child index out of range")
	}
	child.parent = n
	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child
	child.MarkRequiresRedraw()
	if child.OnAdded != nil {
		child.OnAdded(child, n)
	}
}

// RemoveChild detaches child from this node.
// Panics if child's parent is not this node.
func (n *Node) RemoveChild(child *Node) {
	if child.parent != n {
		panic("ember: child's parent is not this node")
	}
	// Stamp while still attached so the change propagates to this
	// container's ancestors.
	child.MarkRequiresRedraw()
	n.removeChildByPtr(child)
	child.parent = nil
	if child.OnRemoved != nil {
		child.OnRemoved(child, n)
	}
}

// RemoveChildAt removes and returns the child at the given index.
func (n *Node) RemoveChildAt(index int) *Node {
	if index < 0 || index >= len(n.children) {
		panic("ember: child index out of range")
	}
	child := n.children[index]
	n.RemoveChild(child)
	return child
}

// RemoveFromParent detaches this node from its parent.
// No-op if this node has no parent.
func (n *Node) RemoveFromParent() {
	if n.parent == nil {
		return
	}
	n.parent.RemoveChild(n)
}

// RemoveChildren detaches all children from this node.
// Children are NOT disposed.
func (n *Node) RemoveChildren() {
	for len(n.children) > 0 {
		n.RemoveChild(n.children[len(n.children)-1])
	}
}

// Parent returns the node's parent, or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the child list. The returned slice MUST NOT be mutated by
// the caller.
func (n *Node) Children() []*Node {
	return n.children
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// ChildAt returns the child at the given index.
func (n *Node) ChildAt(index int) *Node {
	if index < 0 || index >= len(n.children) {
		panic("ember: child index out of range")
	}
	return n.children[index]
}

// SetChildIndex moves child to a new index among its siblings.
func (n *Node) SetChildIndex(child *Node, index int) {
	if child.parent != n {
		panic("ember: child's parent is not this node")
	}
	nc := len(n.children)
	if index < 0 || index >= nc {
		panic("ember: child index out of range")
	}
	oldIndex := -1
	for i, c := range n.children {
		if c == child {
			oldIndex = i
			break
		}
	}
	if oldIndex == index {
		return
	}
	// Shift elements to fill the gap and open the target slot.
	if oldIndex < index {
		copy(n.children[oldIndex:], n.children[oldIndex+1:index+1])
	} else {
		copy(n.children[index+1:], n.children[index:oldIndex])
	}
	n.children[index] = child
	n.MarkRequiresRedraw()
}

// --- Disposal ---

// Dispose removes this node from its parent, marks it disposed, recursively
// disposes all descendants, and unlinks mask/filter references. GPU-owned
// render textures attached through masks or filters must be disposed by
// their owners.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.RemoveFromParent()
	n.dispose()
}

func (n *Node) dispose() {
	n.disposed = true
	n.ID = 0
	for _, child := range n.children {
		child.parent = nil
		child.dispose()
	}
	n.children = nil
	n.parent = nil
	if n.mask != nil {
		n.mask.maskee = nil
		n.mask = nil
	}
	if n.maskee != nil {
		n.maskee.mask = nil
		n.maskee = nil
	}
	n.filter = nil
	n.threeD = nil
	n.mesh = Mesh{}
	n.UserData = nil
	n.OnAdded = nil
	n.OnRemoved = nil
	n.OnEnterFrame = nil
}

// IsDisposed returns true if this node has been disposed.
func (n *Node) IsDisposed() bool {
	return n.disposed
}

// --- Coordinate conversion ---

// stageTransform returns the node's combined local-to-stage affine matrix.
// For an off-tree mask node this resolves through the maskee.
func (n *Node) stageTransform() [6]float64 {
	m := computeLocalTransform(n)
	for p := n.parentOrMaskee(); p != nil; p = p.parentOrMaskee() {
		m = multiplyAffine(computeLocalTransform(p), m)
	}
	return m
}

// LocalToStage converts a local-space point to stage space.
func (n *Node) LocalToStage(lx, ly float64) (sx, sy float64) {
	return transformPoint(n.stageTransform(), lx, ly)
}

// StageToLocal converts a stage-space point to this node's local space.
func (n *Node) StageToLocal(sx, sy float64) (lx, ly float64) {
	return transformPoint(invertAffine(n.stageTransform()), sx, sy)
}

// --- Helpers ---

// isAncestor reports whether candidate is an ancestor of node (or node itself).
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from n.children without clearing
// child.parent. Uses copy+nil to avoid retaining a dangling pointer in the
// backing array.
func (n *Node) removeChildByPtr(child *Node) {
	for i, c := range n.children {
		if c == child {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			return
		}
	}
}
