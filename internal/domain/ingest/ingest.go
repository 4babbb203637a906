// Package ingest validates inbound video webhooks before any session exists.
package ingest

import (
	"context"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/okian/clutch/internal/domain/analysisconfig"
)

// Defaults applied by NewValidator.
const (
	DefaultFPS                = 30.0
	MaxFPS                    = 240.0
	DefaultMaxDurationSeconds = 600.0
	DefaultMinWidth           = 480
	DefaultMinHeight          = 360
)

// DefaultFormats lists the container formats accepted by default.
func DefaultFormats() []string {
	return []string{"mp4", "mov", "m4v", "avi", "mkv", "webm"}
}

var schemes = []string{"http", "https", "file", "s3", "gs"}

// Tags carries the subject and analysis context of a video.
type Tags struct {
	SubjectID   string   `json:"subject_id"`
	Sport       string   `json:"sport"`
	SessionType string   `json:"session_type"`
	Context     []string `json:"context,omitempty"`
}

// Request is the ingestion webhook payload.
type Request struct {
	DeliveryID      string  `json:"delivery_id,omitempty"`
	VideoURL        string  `json:"video_url"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	Tags            Tags    `json:"tags"`
}

// Key is the idempotency key of a delivery: the delivery id when set,
// otherwise subject and video reference.
func (r Request) Key() string {
	if id := strings.TrimSpace(r.DeliveryID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Tags.SubjectID) + "|" + strings.TrimSpace(r.VideoURL)
}

// Option configures a Validator.
type Option func(*Validator)

// WithFormats replaces the supported container formats.
func WithFormats(formats ...string) Option {
	return func(v *Validator) {
		if len(formats) == 0 {
			return
		}
		v.formats = v.formats[:0]
		for _, f := range formats {
			if f = normalizeFormat(f); f != "" {
				v.formats = append(v.formats, f)
			}
		}
	}
}

// WithMaxDuration sets the longest accepted video in seconds.
func WithMaxDuration(seconds float64) Option {
	return func(v *Validator) {
		if seconds > 0 {
			v.maxDuration = seconds
		}
	}
}

// WithMinResolution sets the smallest accepted frame size.
func WithMinResolution(width, height int) Option {
	return func(v *Validator) {
		if width > 0 {
			v.minWidth = width
		}
		if height > 0 {
			v.minHeight = height
		}
	}
}

// Validator checks requests against the ingestion rules.
type Validator struct {
	formats     []string
	maxDuration float64
	minWidth    int
	minHeight   int
}

// NewValidator returns a Validator with options applied.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		formats:     DefaultFormats(),
		maxDuration: DefaultMaxDurationSeconds,
		minWidth:    DefaultMinWidth,
		minHeight:   DefaultMinHeight,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Formats returns the supported formats.
func (v *Validator) Formats() []string { return slices.Clone(v.formats) }

// Validate normalizes r and checks every rule, collecting all violations
// into one *ValidationError.
func (v *Validator) Validate(r Request) (Request, error) {
	r = normalize(r)
	var p problems

	switch {
	case r.VideoURL == "":
		p.add("video_url", "required")
	case !validRef(r.VideoURL):
		p.add("video_url", "must be an http, https, file, s3 or gs URL or a file path")
	}
	switch {
	case r.Format == "":
		p.add("format", "required")
	case !slices.Contains(v.formats, r.Format):
		p.add("format", "unsupported format "+r.Format+"; supported: "+strings.Join(v.formats, ", "))
	}
	switch {
	case r.DurationSeconds <= 0:
		p.add("duration_seconds", "must be positive")
	case r.DurationSeconds > v.maxDuration:
		p.addf("duration_seconds", "exceeds maximum of %gs", v.maxDuration)
	}
	if r.Width < v.minWidth || r.Height < v.minHeight {
		p.addf("resolution", "minimum resolution is %dx%d, got %dx%d", v.minWidth, v.minHeight, r.Width, r.Height)
	}
	if r.FPS <= 0 || r.FPS > MaxFPS {
		p.addf("fps", "must be in (0, %g]", MaxFPS)
	}
	if r.Tags.SubjectID == "" {
		p.add("tags.subject_id", "required")
	}
	if err := analysisconfig.Validate(r.Tags.Sport, r.Tags.SessionType); err != nil {
		p.add("tags", err.Error())
	}

	if err := p.err(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func normalize(r Request) Request {
	r.DeliveryID = strings.TrimSpace(r.DeliveryID)
	r.VideoURL = strings.TrimSpace(r.VideoURL)
	r.Format = normalizeFormat(r.Format)
	if r.Format == "" {
		r.Format = normalizeFormat(path.Ext(refPath(r.VideoURL)))
	}
	if r.FPS == 0 {
		r.FPS = DefaultFPS
	}
	r.Tags.SubjectID = strings.TrimSpace(r.Tags.SubjectID)
	r.Tags.Sport = strings.ToLower(strings.TrimSpace(r.Tags.Sport))
	r.Tags.SessionType = strings.ToLower(strings.TrimSpace(r.Tags.SessionType))
	var labels []string
	for _, c := range r.Tags.Context {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" && !slices.Contains(labels, c) {
			labels = append(labels, c)
		}
	}
	r.Tags.Context = labels
	return r
}

func normalizeFormat(f string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
}

func validRef(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return u.Path != ""
	}
	if !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return false
	}
	if u.Scheme == "file" {
		return u.Path != ""
	}
	return u.Host != ""
}

func refPath(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		return u.Path
	}
	return ref
}

// LocalPath returns the filesystem path of a bare path or file:// reference.
func LocalPath(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "":
		return ref, ref != ""
	case "file":
		return u.Path, u.Path != ""
	default:
		return "", false
	}
}

// Metadata is what a Prober can tell about a video.
type Metadata struct {
	Format          string
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
}

// Prober inspects a video reference.
type Prober interface {
	Probe(ctx context.Context, ref string) (Metadata, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ref string) (Metadata, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, ref string) (Metadata, error) { return f(ctx, ref) }

// Enrich fills missing metadata fields of r by probing local references.
// Values present in the request win. Remote references are left untouched.
func Enrich(ctx context.Context, p Prober, r Request) (Request, error) {
	if p == nil || !incomplete(r) {
		return r, nil
	}
	if _, ok := LocalPath(strings.TrimSpace(r.VideoURL)); !ok {
		return r, nil
	}
	md, err := p.Probe(ctx, strings.TrimSpace(r.VideoURL))
	if err != nil {
		return r, err
	}
	if r.Format == "" {
		r.Format = md.Format
	}
	if r.DurationSeconds == 0 {
		r.DurationSeconds = md.DurationSeconds
	}
	if r.Width == 0 && r.Height == 0 {
		r.Width, r.Height = md.Width, md.Height
	}
	if r.FPS == 0 {
		r.FPS = md.FPS
	}
	return r, nil
}

func incomplete(r Request) bool {
	return r.Format == "" || r.DurationSeconds == 0 || r.Width == 0 || r.Height == 0 || r.FPS == 0
}
