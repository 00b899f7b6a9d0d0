// Package alphacodec converts between straight-alpha RGBA rasters and
// dual-channel frames, where one half of a double-width frame carries color
// and the other half a greyscale matte.
//
// All functions work on tightly packed byte slices: RGBA rasters use four
// bytes per pixel with a stride of width*4, black-backed output uses three
// bytes per pixel. The Rect kernels process a sub-rectangle of the single-half
// coordinate space and only touch the matching pixels of their output, so
// disjoint rectangles can run concurrently on shared output slices. The whole
// frame helpers run the same kernels over the full frame.
package alphacodec
