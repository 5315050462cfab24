// Package source supplies frames from a fixed set of cameras. Each
// camera is a Source; a Registry holds them in camera order and takes
// snapshots of one frame per camera.
package source

import(
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
)

type Frame struct {
	Image    image.Image
	Filename string
	Captured time.Time // zero when the file carries no EXIF time
}

type Source interface {
	Name() string
	// Frame returns the camera's next frame, or io.EOF when it has no
	// more.
	Frame() (Frame, error)
}

func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}

// Load decodes a PNG, JPEG or TIFF file, and its EXIF capture time if
// it has one.
func Load(filename string) (Frame, error) {
	f := Frame{Filename: filename}

	reader, err := os.Open(filename)
	if err != nil {
		return f, errors.Wrapf(err, "open '%s'", filename)
	}
	defer reader.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		f.Image, err = tiff.Decode(reader)
	default:
		f.Image, _, err = image.Decode(reader)
	}
	if err != nil {
		return f, errors.Wrapf(err, "decoding '%s'", filename)
	}

	// Plenty of frames have no EXIF block at all, so only a readable
	// timestamp counts.
	if _, err := reader.Seek(0, io.SeekStart); err == nil {
		if ex, err := exif.Decode(reader); err == nil {
			if t, err := ex.DateTime(); err == nil {
				f.Captured = t
			}
		}
	}
	return f, nil
}

// FileSource is a camera that always shows the same still image.
type FileSource struct {
	Path string
}

func (fs FileSource)Name() string          { return fs.Path }
func (fs FileSource)Frame() (Frame, error) { return Load(fs.Path) }

// DirSource is a camera that drops frame files into a directory. In
// sequence mode each call returns the next file in name order; in latest
// mode it returns the newest (last by name) file every time.
type DirSource struct {
	Dir    string
	Latest bool

	next int
}

func NewDirSource(dir string, latest bool) *DirSource {
	return &DirSource{Dir: dir, Latest: latest}
}

func (ds *DirSource)Name() string { return ds.Dir }

func (ds *DirSource)Frame() (Frame, error) {
	files, err := ds.Files()
	if err != nil {
		return Frame{}, err
	}
	if ds.Latest {
		if len(files) == 0 {
			return Frame{}, errors.Errorf("%s: no frames yet", ds.Dir)
		}
		return Load(files[len(files)-1])
	}
	if ds.next >= len(files) {
		return Frame{}, io.EOF
	}
	ds.next++
	return Load(files[ds.next-1])
}

// Files lists the frame files in the directory, sorted by name.
func (ds *DirSource)Files() ([]string, error) {
	entries, err := os.ReadDir(ds.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "readdir '%s'", ds.Dir)
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) {
			out = append(out, filepath.Join(ds.Dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ForPath makes a FileSource for a file, or a DirSource for a directory.
func ForPath(path string, latest bool) (Source, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "camera '%s'", path)
	}
	if st.IsDir() {
		return NewDirSource(path, latest), nil
	}
	if !Supported(path) {
		return nil, errors.Errorf("camera '%s': not a PNG, JPEG or TIFF file", path)
	}
	return FileSource{Path: path}, nil
}
