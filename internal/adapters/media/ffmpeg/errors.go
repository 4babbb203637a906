package ffmpeg

import "errors"

var (
	// ErrBinaryNotFound reports a missing ffmpeg executable.
	ErrBinaryNotFound = errors.New("ffmpeg binary not found")
	// ErrUnknownDimensions reports a source without width or height.
	ErrUnknownDimensions = errors.New("ffmpeg: source dimensions unknown")
	// ErrNoFrames reports an input that decoded to nothing.
	ErrNoFrames = errors.New("ffmpeg: no frames decoded")
	// ErrShortRead reports a truncated frame mid-stream.
	ErrShortRead = errors.New("ffmpeg: short frame read")
)
