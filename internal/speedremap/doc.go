// Package speedremap implements the piecewise-linear time warp that maps an
// output timeline position to a source frame.
//
// A Table holds keyframes sorted by output position. The first and last
// keyframes are endpoints: they can be moved but never deleted. Between
// keyframes the source frame is linearly interpolated, so a table with only
// the default endpoints (0,0) and (N,1) is the identity mapping and callers
// use IsIdentity to skip remap work entirely.
//
// The same table drives three consumers: frame sampling (BuildFrameMap),
// audio tempo adjustment (Segments / SpeedAt), and container frame building.
package speedremap
