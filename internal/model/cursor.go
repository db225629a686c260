package model

// Rect is an axis-aligned rectangle used to bound the virtual cursor
// to the active remote screen.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether (x, y) falls within the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Clamp pins v into [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VirtualCursor is present on the server only while a remote client is
// active. Coordinates are in the active client's local space.
//
// Invariant: 0 <= X < W and 0 <= Y < H of ActiveRemoteBounds.
type VirtualCursor struct {
	X                 int
	Y                 int
	ActiveRemoteBounds Rect
	TargetInstanceID  string
}

// MoveBy applies a relative motion, clamping to the active bounds.
func (vc *VirtualCursor) MoveBy(dx, dy int) {
	vc.X = Clamp(vc.X+dx, 0, vc.ActiveRemoteBounds.W-1)
	vc.Y = Clamp(vc.Y+dy, 0, vc.ActiveRemoteBounds.H-1)
}
