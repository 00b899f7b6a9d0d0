// Package ffmpeg drives the ffmpeg binary for carrier IO.
//
// FrameReader decodes a video into packed RGBA frames over a rawvideo pipe,
// CarrierWriter encodes packed RGB frames into an H.264 MP4 with optional
// audio, and ExtractAudio renders a (possibly remapped) audio track to MP3.
// The core never decodes or encodes video itself; everything crosses this
// boundary as raw pixels.
package ffmpeg
