package replay

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/okian/clutch/internal/domain/analysisconfig"
	"github.com/okian/clutch/internal/domain/ingest"
)

// Kind classifies a generated delivery by its expected outcome.
type Kind string

// Delivery kinds.
const (
	KindValid     Kind = "valid"
	KindInvalid   Kind = "invalid"
	KindDuplicate Kind = "duplicate"
)

// Delivery is one generated webhook call.
type Delivery struct {
	Kind    Kind           `json:"kind"`
	Request ingest.Request `json:"request"`
}

// Generator produces deliveries from a seeded source.
type Generator struct {
	rnd     *rand.Rand
	seconds float64
}

// NewGenerator returns a generator; equal seeds give equal batches apart
// from the random identifiers.
func NewGenerator(seed uint64, seconds float64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seconds: seconds}
}

// Generate returns the valid deliveries, then the invalid ones, then
// redeliveries of a share of the valid ones.
func (g *Generator) Generate(sessions int, invalidRatio, duplicateRatio float64) []Delivery {
	invalid := int(float64(sessions)*invalidRatio + 0.5)
	dups := int(float64(sessions)*duplicateRatio + 0.5)
	out := make([]Delivery, 0, sessions+invalid+dups)

	for range sessions {
		out = append(out, Delivery{Kind: KindValid, Request: g.valid()})
	}
	for i := range invalid {
		out = append(out, Delivery{Kind: KindInvalid, Request: g.invalid(i)})
	}
	for i := range dups {
		orig := out[i%sessions]
		out = append(out, Delivery{Kind: KindDuplicate, Request: orig.Request})
	}
	return out
}

func (g *Generator) valid() ingest.Request {
	pairs := analysisconfig.Pairs()
	p := pairs[g.rnd.IntN(len(pairs))]
	subject := "replay-" + uuid.NewString()
	return ingest.Request{
		DeliveryID:      uuid.NewString(),
		VideoURL:        fmt.Sprintf("https://replay.clutch.local/%s.mp4", subject),
		Format:          "mp4",
		DurationSeconds: g.seconds,
		Width:           1280,
		Height:          720,
		FPS:             []float64{24, 30, 60}[g.rnd.IntN(3)],
		Tags: ingest.Tags{
			SubjectID:   subject,
			Sport:       p.Sport,
			SessionType: p.SessionType,
		},
	}
}

// invalid breaks one validation rule per delivery, cycling through them.
func (g *Generator) invalid(i int) ingest.Request {
	r := g.valid()
	switch i % 5 {
	case 0:
		r.Format = "flv"
	case 1:
		r.DurationSeconds = 0
	case 2:
		r.Width, r.Height = 160, 120
	case 3:
		r.Tags.Sport = "curling"
	default:
		r.Tags.SubjectID = ""
	}
	return r
}
