package extractor

import (
	"errors"
	"fmt"

	"github.com/okian/clutch/internal/domain/landmark"
)

// Provider hands out one shared Process per landmark kind.
type Provider struct {
	procs map[landmark.Kind]*Process
}

// NewProvider builds processes for the configured commands. An empty command
// leaves that kind unavailable.
func NewProvider(poseCommand, faceCommand string, opts ...Option) (*Provider, error) {
	pr := &Provider{procs: make(map[landmark.Kind]*Process, 2)}
	for kind, command := range map[landmark.Kind]string{landmark.KindPose: poseCommand, landmark.KindFace: faceCommand} {
		if command == "" {
			continue
		}
		p, err := NewProcess(kind, command, opts...)
		if err != nil {
			return nil, err
		}
		pr.procs[kind] = p
	}
	if len(pr.procs) == 0 {
		return nil, ErrNoCommand
	}
	return pr, nil
}

// Extractor implements landmark.Provider.
func (pr *Provider) Extractor(kind landmark.Kind) (landmark.Extractor, error) {
	p, ok := pr.procs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", landmark.ErrUnsupportedKind, ErrNoCommand, kind)
	}
	return p, nil
}

// Close terminates every model process.
func (pr *Provider) Close() error {
	var errs []error
	for _, p := range pr.procs {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
