package ember

// Filter post-processes a node's rendered output, typically by drawing the
// subtree into a render texture and drawing that texture back with a custom
// program obtained through Painter.Program. A filtered node is excluded from
// the render cache every frame, since the filter's output is not part of the
// cacheable batch stream.
type Filter interface {
	// Render draws n (and its subtree) with the filter applied. The painter's
	// state already carries n's composed transform, alpha, and blend mode.
	Render(p *Painter, n *Node)
}

// Render draws the node's own geometry, then its children. The parent's
// traversal has already composed this node's transform, alpha, blend mode,
// and mask into the painter's state; Render never touches them itself.
func (n *Node) Render(p *Painter) {
	if debugEnabled {
		debugCheckDisposed(n, "Render")
	}
	if len(n.mesh.Vertices) > 0 {
		p.BatchMesh(&n.mesh, nil)
	}
	n.renderChildren(p)
}

// renderChildren traverses the child list, replaying each unchanged child
// from the previous frame's batch stream and rendering the rest fresh. Both
// paths record fresh push/pop tokens, so next frame's cache source (this
// frame's stream) covers every child.
func (n *Node) renderChildren(p *Painter) {
	frame := p.FrameID()
	cacheEnabled := p.CacheEnabled()

	for _, child := range n.children {
		if !child.hasVisibleArea {
			continue
		}

		// Stamps flow downward with the traversal: the child inherits the
		// strongest ancestor change, so the replay check below consults the
		// child's own stamps only. This is what makes reattached subtrees
		// safe without ever walking them eagerly.
		if n.selfOrParentChangedFrame > child.selfOrParentChangedFrame {
			child.selfOrParentChangedFrame = n.selfOrParentChangedFrame
		}

		if cacheEnabled && child.canReplayCache(frame) {
			start, end := child.pushToken, child.popToken
			p.FillToken(&child.pushToken)
			p.DrawFromCache(start, end)
			p.FillToken(&child.popToken)
			child.tokenFrame = frame
			continue
		}

		if cacheEnabled {
			p.FillToken(&child.pushToken)
		}

		p.PushState()
		state := p.State()
		if child.threeD != nil {
			state.TransformModelview3D(composeTransform3D(child))
			p.ExcludeFromCache(child)
		} else {
			state.TransformModelview(computeLocalTransform(child))
		}
		state.Alpha *= child.alpha
		if child.blendMode != BlendAuto {
			state.SetBlendMode(child.blendMode)
		}

		if child.mask != nil {
			p.DrawMask(child.mask, child)
		}
		if child.filter != nil {
			p.ExcludeFromCache(child)
			child.filter.Render(p, child)
		} else {
			child.Render(p)
		}
		if child.mask != nil {
			p.EraseMask(child.mask, child)
		}
		p.PopState()

		if cacheEnabled {
			p.FillToken(&child.popToken)
			child.tokenFrame = frame
		}
	}
}

// canReplayCache reports whether the node's batch range from the previous
// frame can be spliced into the current stream: its tokens must come from
// exactly the previous frame, and neither the node, an ancestor, nor any
// descendant may have changed in the current or the previous frame. The
// prior-frame condition covers mutations made between FinishFrame and the
// next NextFrame, which carry the old frame's stamp.
func (n *Node) canReplayCache(frame uint64) bool {
	return n.tokenFrame == frame-1 &&
		n.selfOrParentChangedFrame < frame-1 &&
		n.childChangedFrame < frame-1
}
