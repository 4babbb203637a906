package ffprobe

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/okian/clutch/internal/domain/ingest"
)

var errNoVideoStream = errors.New("ffprobe: no video stream")

// Prober implements ingest.Prober for local files.
type Prober struct {
	Binary string
}

// NewProber returns a Prober running binary ("ffprobe" when empty).
func NewProber(binary string) *Prober { return &Prober{Binary: binary} }

// Probe inspects a local reference and reports its video metadata.
func (p *Prober) Probe(ctx context.Context, ref string) (ingest.Metadata, error) {
	path, ok := ingest.LocalPath(ref)
	if !ok {
		return ingest.Metadata{}, nil
	}
	res, err := Inspect(ctx, p.Binary, path)
	if err != nil {
		return ingest.Metadata{}, err
	}
	return metadata(path, res)
}

func metadata(path string, res Result) (ingest.Metadata, error) {
	v, ok := res.VideoStream()
	if !ok {
		return ingest.Metadata{}, errNoVideoStream
	}
	md := ingest.Metadata{
		DurationSeconds: res.DurationSeconds(),
		Width:           v.Width,
		Height:          v.Height,
		FPS:             res.FPS(),
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if names := res.FormatNames(); ext == "" && len(names) > 0 {
		ext = names[0]
	}
	md.Format = ext
	return md, nil
}
