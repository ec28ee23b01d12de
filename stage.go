package ember

import "math"

// defaultFieldOfView gives stage content the familiar "moderate perspective"
// look; at this angle the focal length is close to the stage width.
const defaultFieldOfView = 1.0

// Stage is the root of the scene graph. It has a fixed logical size (layout
// happens in stage coordinates regardless of window size), owns the frame
// counter the rest of the system is stamped against, and defines the camera
// used to build the perspective projection. Content at z == 0 renders at its
// literal 2D size; the near plane coincides with the stage plane.
type Stage struct {
	Node

	width  float64
	height float64
	color  Color

	fieldOfView      float64
	projectionOffset Vec2

	frameID uint64
}

// NewStage creates a stage with the given logical size and background color.
func NewStage(width, height float64, color Color) *Stage {
	if width <= 0 || height <= 0 {
		panic("ember: stage must have a positive size")
	}
	s := &Stage{
		width:       width,
		height:      height,
		color:       color,
		fieldOfView: defaultFieldOfView,
	}
	nodeDefaults(&s.Node)
	s.Name = "stage"
	s.Type = NodeTypeStage
	s.stageFrame = &s.frameID
	return s
}

// Width returns the logical stage width.
func (s *Stage) Width() float64 { return s.width }

// Height returns the logical stage height.
func (s *Stage) Height() float64 { return s.height }

// SetSize changes the logical stage size.
func (s *Stage) SetSize(width, height float64) {
	if width <= 0 || height <= 0 {
		panic("ember: stage must have a positive size")
	}
	if s.width == width && s.height == height {
		return
	}
	s.width, s.height = width, height
	s.MarkRequiresRedraw()
}

// Color returns the background color.
func (s *Stage) Color() Color { return s.color }

// SetColor changes the background color.
func (s *Stage) SetColor(c Color) {
	if s.color == c {
		return
	}
	s.color = c
	s.MarkRequiresRedraw()
}

// FieldOfView returns the vertical camera aperture in radians.
func (s *Stage) FieldOfView() float64 { return s.fieldOfView }

// SetFieldOfView changes the camera aperture. Smaller values flatten the
// perspective (telephoto), larger values exaggerate it.
func (s *Stage) SetFieldOfView(fov float64) {
	if fov <= 0 || fov >= math.Pi {
		panic("ember: field of view must be in (0, pi)")
	}
	if s.fieldOfView == fov {
		return
	}
	s.fieldOfView = fov
	s.MarkRequiresRedraw()
}

// ProjectionOffset returns the camera's offset from the stage center.
func (s *Stage) ProjectionOffset() Vec2 { return s.projectionOffset }

// SetProjectionOffset moves the vanishing point away from the stage center.
func (s *Stage) SetProjectionOffset(offset Vec2) {
	if s.projectionOffset == offset {
		return
	}
	s.projectionOffset = offset
	s.MarkRequiresRedraw()
}

// FocalLength returns the distance between the camera and the stage plane,
// derived from the stage width and the field of view.
func (s *Stage) FocalLength() float64 {
	return s.width / (2 * math.Tan(s.fieldOfView/2))
}

// CameraPosition returns the camera location in stage coordinates. The
// camera sits in front of the stage plane (negative z) above the stage
// center plus the projection offset.
func (s *Stage) CameraPosition() Vec3 {
	return Vec3{
		X: s.width/2 + s.projectionOffset.X,
		Y: s.height/2 + s.projectionOffset.Y,
		Z: -s.FocalLength(),
	}
}

// FrameID returns the stage's current frame counter value.
func (s *Stage) FrameID() uint64 {
	return s.frameID
}

// NextFrame advances the frame counter and returns the new value. The driver
// calls this once per tick and passes the result to Painter.NextFrame — the
// counter travels explicitly, never through ambient state.
func (s *Stage) NextFrame() uint64 {
	s.frameID++
	return s.frameID
}

// RequiresRedraw reports whether the tree changed since it was last
// rendered. Drivers check this after FinishFrame and before NextFrame; when
// false and no external event (context restore, window expose) forces a
// redraw, the frame can be skipped entirely.
func (s *Stage) RequiresRedraw() bool {
	return s.selfOrParentChangedFrame >= s.frameID ||
		s.childChangedFrame >= s.frameID
}

// AdvanceTime dispatches OnEnterFrame across the tree, depth first. Called
// once per tick, before Render, so callbacks mutate the scene inside the
// frame whose stamps they will carry. Callbacks may remove their own node
// (or siblings) during dispatch.
func (s *Stage) AdvanceTime(dt float64) {
	dispatchEnterFrame(&s.Node, dt)
}

func dispatchEnterFrame(n *Node, dt float64) {
	if n.OnEnterFrame != nil {
		n.OnEnterFrame(n, dt)
	}
	for i := 0; i < len(n.children); i++ {
		child := n.children[i]
		dispatchEnterFrame(child, dt)
		if i < len(n.children) && n.children[i] != child {
			i--
		}
	}
}

// Render draws the whole tree through the painter: it installs the stage
// projection, clears the back buffer, and traverses the children. The driver
// brackets this with painter.NextFrame(stage.NextFrame()) and
// painter.FinishFrame().
func (s *Stage) Render(p *Painter) {
	if p.FrameID() != s.frameID {
		panic("ember: painter frame does not match stage frame; call Painter.NextFrame(stage.NextFrame()) first")
	}
	p.State().SetProjection(0, 0, s.width, s.height, s.width, s.height, s.CameraPosition())
	p.Clear(s.color)
	s.renderChildren(p)
	if debugEnabled {
		debugFrameStats(s.frameID, p.Stats())
	}
}
