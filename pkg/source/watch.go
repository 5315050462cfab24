package source

import(
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watch signals on the returned channel each time every directory camera
// has received at least one new frame file since the last signal. Only
// DirSources are watched; file cameras never change. Both channels are
// closed when ctx is done.
func (r *Registry)Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, errors.Wrap(err, "fsnotify")
	}

	dirs := map[string]int{}
	for _, s := range r.sources {
		if ds, ok := s.(*DirSource); ok {
			dir := filepath.Clean(ds.Dir)
			if _, dup := dirs[dir]; dup {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				watcher.Close()
				return nil, nil, errors.Wrapf(err, "watching '%s'", dir)
			}
			dirs[dir] = len(dirs)
		}
	}
	if len(dirs) == 0 {
		watcher.Close()
		return nil, nil, errors.New("no directory cameras to watch")
	}

	sets := make(chan struct{}, 1)
	errs := make(chan error, 8)
	go func() {
		defer close(errs)
		defer close(sets)
		defer watcher.Close()

		fresh := make([]bool, len(dirs))
		nFresh := 0
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !Supported(event.Name) {
					continue
				}
				i, ok := dirs[filepath.Dir(event.Name)]
				if !ok || fresh[i] {
					continue
				}
				fresh[i] = true
				if nFresh++; nFresh < len(fresh) {
					continue
				}
				for j := range fresh {
					fresh[j] = false
				}
				nFresh = 0
				select {
				case sets <- struct{}{}:
				default: // a signal is already pending
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()
	return sets, errs, nil
}
