package source

import(
	"image"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Registry is the ordered set of cameras feeding one stitcher. The
// camera index is the order of Add.
type Registry struct {
	// BlankOnError substitutes a black frame, the size of that camera's
	// last good frame, when a camera fails to deliver.
	BlankOnError bool

	sources []Source
	last    []image.Point
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry)Add(s Source) int {
	r.sources = append(r.sources, s)
	r.last = append(r.last, image.Point{})
	return len(r.sources) - 1
}

func (r *Registry)Len() int { return len(r.sources) }

func (r *Registry)Names() []string {
	out := make([]string, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Name()
	}
	return out
}

func (r *Registry)Sources() []Source { return append([]Source(nil), r.sources...) }

type Snapshot struct {
	Frames []image.Image
	Files  []string
	Blank  []bool // which frames were substituted

	// Skew is the spread of the EXIF capture times, over the frames that
	// have one.
	Skew   time.Duration
}

// Snapshot takes one frame from every camera. It returns io.EOF once any
// camera runs out of frames; that is never papered over with a blank.
func (r *Registry)Snapshot() (Snapshot, error) {
	n := len(r.sources)
	snap := Snapshot{Frames: make([]image.Image, n), Files: make([]string, n), Blank: make([]bool, n)}
	var first, latest time.Time

	for i, s := range r.sources {
		f, err := s.Frame()
		if err == io.EOF {
			return snap, io.EOF
		}
		if err != nil {
			if !r.BlankOnError || r.last[i] == (image.Point{}) {
				return snap, errors.Wrapf(err, "camera %d (%s)", i, s.Name())
			}
			snap.Frames[i] = image.NewGray(image.Rectangle{Max: r.last[i]})
			snap.Blank[i] = true
			continue
		}

		snap.Frames[i], snap.Files[i] = f.Image, f.Filename
		r.last[i] = f.Image.Bounds().Size()
		if !f.Captured.IsZero() {
			if first.IsZero() || f.Captured.Before(first) {
				first = f.Captured
			}
			if f.Captured.After(latest) {
				latest = f.Captured
			}
		}
	}
	if !first.IsZero() {
		snap.Skew = latest.Sub(first)
	}
	return snap, nil
}

// Blanks counts the substituted frames.
func (s Snapshot)Blanks() int {
	n := 0
	for _, b := range s.Blank {
		if b {
			n++
		}
	}
	return n
}
