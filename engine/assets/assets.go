package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/vkbind/engine/core"
	"golang.org/x/exp/slices"
)

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// ChangeFunc receives an asset reloaded after a change on disk, or the error
// the reload produced. It runs on the watch goroutine.
type ChangeFunc func(asset *Asset, err error)

// AssetManager indexes signature files and shader binaries and reloads them
// when they change on disk.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex     sync.RWMutex
	listeners []ChangeFunc

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	am.registerLoader(AssetTypeSignature, SignatureLoader{})
	am.registerLoader(AssetTypeShader, ShaderLoader{})
	return am, nil
}

// Initialize indexes and watches assetsDir and all of its sub-directories.
func (am *AssetManager) Initialize(assetsDir string) error {
	if err := am.addRecursive(assetsDir); err != nil {
		return err
	}
	am.startOnce()
	return nil
}

// Watch indexes a single file and watches the directory holding it.
func (am *AssetManager) Watch(path string) error {
	path = filepath.Clean(path)
	if determineAssetType(path) == AssetTypeNone {
		return fmt.Errorf("unknown asset type for %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := am.add(filepath.Dir(path)); err != nil {
		return err
	}
	am.handleFileEvent(path)
	am.startOnce()
	return nil
}

// OnChange registers fn for every reload.
func (am *AssetManager) OnChange(fn ChangeFunc) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.listeners = append(am.listeners, fn)
}

func (am *AssetManager) startOnce() {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.started {
		return
	}
	am.started = true
	go am.start()
}

func (am *AssetManager) closed() bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return am.isClosed
}

// Add starts watching the named file or directory (non-recursively).
func (am *AssetManager) add(name string) error {
	if am.closed() {
		return errors.New("asset manager already closed")
	}
	return am.fsnotify.Add(name)
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.closed() {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name)
}

func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// Load reads an asset with the loader registered for its extension. The
// asset does not have to be indexed.
func (am *AssetManager) Load(path string) (*Asset, error) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for %s", path)
	}
	asset, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: assetType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return asset, nil
}

// Assets lists the indexed assets by path.
func (am *AssetManager) Assets() []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	out := make([]AssetInfo, 0, len(am.assets))
	for _, info := range am.assets {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b AssetInfo) int { return strings.Compare(a.Path, b.Path) })
	return out
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	started := am.started
	am.mutex.Unlock()

	close(am.done)
	if started {
		<-am.stopped
		return nil
	}
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			name := filepath.Clean(e.Name)
			s, err := os.Stat(name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(name); err != nil {
						core.LogWarn("failed to watch %s: %s", name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(name) {
					am.reload(name)
				}
			}
			// a removed path cannot be stat'ed, so it may have been a directory
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(name)
				_ = am.fsnotify.Remove(name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) reload(path string) {
	asset, err := am.Load(path)
	if err != nil {
		core.LogWarn("reload of %s failed: %s", path, err)
	} else {
		core.LogInfo("%s %s reloaded", asset.Type, path)
	}
	am.mutex.RLock()
	listeners := slices.Clone(am.listeners)
	am.mutex.RUnlock()
	for _, fn := range listeners {
		fn(asset, err)
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the assets it finds.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(filepath.Clean(walkPath))
		return nil
	})
}

// handleFileEvent indexes path and reports whether it is an asset.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[path]
	if !ok {
		info = AssetInfo{Path: path, Type: assetType}
	}
	am.assets[path] = info
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}
