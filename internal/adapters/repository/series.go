package repository

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/clutch/internal/domain/model"
)

// DefaultChunkSize is the number of metric frames per stored chunk.
const DefaultChunkSize = 256

// ChunkStore is the part of Store that holds frame series chunks.
type ChunkStore interface {
	AppendChunk(ctx context.Context, id string, kind model.StreamKind, index int, blob []byte) error
	Chunks(ctx context.Context, id string, kind model.StreamKind) ([][]byte, error)
}

// AppendSeries stores frames as msgpack chunks of chunkSize frames. Chunk
// indexes are positional, so re-persisting the same series is a no-op.
func AppendSeries[T any](ctx context.Context, st ChunkStore, id string, kind model.StreamKind, frames []T, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for idx, start := 0, 0; start < len(frames); idx, start = idx+1, start+chunkSize {
		end := min(start+chunkSize, len(frames))
		blob, err := msgpack.Marshal(frames[start:end])
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", idx, err)
		}
		if err := st.AppendChunk(ctx, id, kind, idx, blob); err != nil {
			return err
		}
	}
	return nil
}

// LoadSeries decodes every chunk of a series back into frames.
func LoadSeries[T any](ctx context.Context, st ChunkStore, id string, kind model.StreamKind) ([]T, error) {
	chunks, err := st.Chunks(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	var out []T
	for i, blob := range chunks {
		var part []T
		if err := msgpack.Unmarshal(blob, &part); err != nil {
			return nil, fmt.Errorf("%w: %s/%s chunk %d: %v", ErrCorruptChunk, id, kind, i, err)
		}
		out = append(out, part...)
	}
	return out, nil
}
