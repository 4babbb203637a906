// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, format name)
//   - Prober: ingest.Prober backed by Inspect
//
// Helper methods on Result expose the primary video stream, its frame rate
// and the container duration.
package ffprobe
