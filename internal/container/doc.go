// Package container encodes and decodes the binary animation container: a
// compressed protobuf-wire message holding frame images, audio clips and
// sprite placement metadata.
//
// The message layout is:
//
//	1 version      string
//	2 width        varint
//	3 height       varint
//	4 fps          fixed32 (float32 bits)
//	5 frame_count  varint
//	6 images       repeated {1 key string, 2 value bytes}
//	7 audios       repeated {1 audio_key, 2 start_frame, 3 end_frame,
//	                         4 start_time, 5 total_time, 6 audio_data}
//	8 sprites      repeated {1 image_key, 2 frames repeated
//	                         {1 alpha, 2 x, 3 y, 4 w, 5 h fixed32}}
//
// The serialized message is zlib-compressed by default; zstd is available
// as an option and Decode detects either.
package container
