// Package audio builds ffmpeg audio filtergraphs that follow a speed remap.
//
// TempoFilter turns the keyframe segments of a remap table into an
// atrim/areverse/atempo chain per segment joined by concat, so the extracted
// audio track stays aligned with the remapped frames. Silent holds are
// rendered from aevalsrc.
package audio
