// Package ember is a frame-coherent 2D scene-graph renderer with nested 3D
// subtrees.
//
// Ember batches scene-graph geometry into as few GPU draw calls as possible
// and, crucially, remembers what it drew: subtrees that did not change since
// the previous frame are replayed from the recorded batch stream instead of
// being traversed again. On mostly-static scenes a frame costs a handful of
// splices rather than a full tree walk.
//
// # Driving a frame
//
// The application owns the loop. Each tick advances the stage's frame
// counter, passes it to the painter, steps animation, renders, and presents:
//
//	stage := ember.NewStage(640, 480, ember.ColorBlack)
//	painter := ember.NewPainter(device)
//
//	for running {
//		painter.NextFrame(stage.NextFrame())
//		stage.AdvanceTime(dt)
//		stage.Render(painter)
//		painter.FinishFrame()
//		painter.Present()
//	}
//
// The device is any [Device] implementation; [NewOpenGLDevice] (GLFW/OpenGL)
// and [NewEbitenDevice] ([Ebitengine]) ship with the package.
//
// # Scene graph
//
// Every visual element is a [Node], created with a typed constructor:
// [NewContainer], [NewQuad], [NewImage], [NewMeshNode], [NewSprite3D].
// Children inherit their parent's transform, alpha, and blend mode.
//
//	hud := ember.NewContainer("hud")
//	stage.AddChild(hud)
//
//	bar := ember.NewQuad("health", 120, 8, ember.Color{R: 0.9, A: 1})
//	bar.SetPosition(16, 16)
//	hud.AddChild(bar)
//
// Mutating a node stamps it with the current frame, which is exactly what
// invalidates its cached batch range; untouched subtrees stay cached.
//
// A node can be masked by another node ([Node.SetMask]): axis-aligned quad
// masks become scissor rectangles, everything else goes through the stencil
// buffer. [NewSprite3D] opens a 3D subtree (z, 3D rotations) inside the 2D
// scene under the stage's perspective camera.
//
// [Ebitengine]: https://ebitengine.org
package ember
