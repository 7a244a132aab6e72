package threatlens

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchCatalog reloads the signature file whenever it changes and
// swaps the result into the provider. A reload that fails to parse is
// logged and the previous catalog stays active. The returned stop
// function releases the watcher.
func WatchCatalog(path string, provider *CatalogProvider) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create signature watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				catalog, err := LoadCatalog(path)
				if err != nil {
					logger.Error().Err(err).Str("file", path).Msg("signature reload failed, keeping previous catalog")
					continue
				}
				provider.Swap(catalog)
				logger.Info().Str("file", path).Msg("signature catalog reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("signature watcher error")
			}
		}
	}()

	return watcher.Close, nil
}
