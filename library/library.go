package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anacrolix/generics"
	"github.com/anacrolix/log"
)

// ErrNotFound is returned by the id-based lookups when no such Folder or
// Item exists.
var ErrNotFound = fmt.Errorf("not found")

// Prober is the MediaProbe collaborator: given a file path, produce a
// populated Item (minus ID/ParentID, which the Library assigns).
type Prober interface {
	Probe(path string) (Item, error)
}

// Library is the process-wide singleton catalog: a mutex-guarded set of
// Folders and Items, synchronized against a set of share directories on the
// filesystem and persisted to an XML index.
type Library struct {
	mu sync.Mutex

	indexPath  string
	shares     []string
	prober     Prober
	logger     log.Logger
	containers []Container

	folders []Folder
	items   []Item
	nextID  uint64

	// systemUpdateID is bumped on boot and whenever a rescan changes the
	// live set, as permitted (not required) by spec §4.F.
	systemUpdateID uint64
}

// New constructs an empty Library. Call BootUp before serving requests.
func New(indexPath string, shares []string, prober Prober, containers []Container, logger log.Logger) *Library {
	return &Library{
		indexPath:      indexPath,
		shares:         shares,
		prober:         prober,
		containers:     containers,
		logger:         logger,
		nextID:         1,
		systemUpdateID: 1,
	}
}

// SystemUpdateID returns the current value for GetSystemUpdateID.
func (lib *Library) SystemUpdateID() uint64 {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	return lib.systemUpdateID
}

func (lib *Library) bumpUpdateID() {
	lib.systemUpdateID++
}

func (lib *Library) observeID(id uint64) {
	if id+1 > lib.nextID {
		lib.nextID = id + 1
	}
}

func (lib *Library) allocID() uint64 {
	id := lib.nextID
	lib.nextID++
	return id
}

// BootUp loads the on-disk index, walks every configured share, and
// rewrites the index with a consistency check, per 4.C boot_up.
func (lib *Library) BootUp() error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	doc := loadIndex(lib.indexPath, lib.logger)
	lib.folders = doc.Folders
	lib.items = doc.Items
	for _, f := range lib.folders {
		lib.observeID(f.ID)
	}
	for _, it := range lib.items {
		lib.observeID(it.ID)
	}

	if lib.rootFolderIndex() < 0 {
		lib.folders = append([]Folder{{ID: 0, ParentID: 0, Title: "root", Path: "", ChildCount: 0}}, lib.folders...)
	}

	for _, share := range lib.shares {
		lib.parseFolder(share, 0)
	}

	lib.bumpUpdateID()
	return lib.persist()
}

func (lib *Library) rootFolderIndex() int {
	for i, f := range lib.folders {
		if f.ID == 0 {
			return i
		}
	}
	return -1
}

func (lib *Library) persist() error {
	return saveIndex(lib.indexPath, lib.folders, lib.items, lib.containers, true, func(p string) (int64, bool) {
		fi, err := os.Stat(p)
		if err != nil {
			return 0, false
		}
		return fi.ModTime().Unix(), true
	})
}

// GetFolderDirect returns a single Folder by id.
func (lib *Library) GetFolderDirect(id uint64) (Folder, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	for _, f := range lib.folders {
		if f.ID == id {
			return f, nil
		}
	}
	return Folder{}, ErrNotFound
}

// GetItemDirect returns a single Item by id.
func (lib *Library) GetItemDirect(id uint64) (Item, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	for _, it := range lib.items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, ErrNotFound
}

// GetFoldersFromParent returns the child Folders of parentID, re-walking
// the parent directory first if its mtime has advanced past the recorded
// value.
func (lib *Library) GetFoldersFromParent(parentID uint64) ([]Folder, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	parent, ok := lib.findFolder(parentID)
	if !ok {
		return nil, ErrNotFound
	}
	if fi, err := os.Stat(parent.Path); err == nil && fi.ModTime().Unix() > parent.LastModified {
		before := len(lib.folders) + len(lib.items)
		lib.parseFolder(parent.Path, parentID)
		if len(lib.folders)+len(lib.items) != before {
			lib.bumpUpdateID()
		}
	}

	var out []Folder
	for _, f := range lib.folders {
		if f.ParentID == parentID && f.ID != parentID {
			out = append(out, f)
		}
	}
	return out, nil
}

// GetItemsFromParent returns the child Items of parentID, re-probing any
// item whose on-disk mtime has advanced and skipping any whose file has
// vanished.
func (lib *Library) GetItemsFromParent(parentID uint64) ([]Item, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	var out []Item
	for i := 0; i < len(lib.items); i++ {
		it := lib.items[i]
		if it.ParentID != parentID {
			continue
		}
		fi, err := os.Stat(it.FilePath)
		if err != nil {
			continue
		}
		if fi.ModTime().Unix() > it.LastModified {
			if reprobed, err := lib.prober.Probe(it.FilePath); err == nil {
				reprobed.ID = it.ID
				reprobed.ParentID = it.ParentID
				stampThumbnailID(&reprobed)
				lib.items[i] = reprobed
				it = reprobed
			} else {
				lib.logger.Levelf(log.Debug, "re-probe of %q failed, keeping stale record: %s", it.FilePath, err)
			}
		}
		out = append(out, it)
	}
	return out, nil
}

func (lib *Library) findFolder(id uint64) (Folder, bool) {
	for i, f := range lib.folders {
		if f.ID == id {
			return lib.folders[i], true
		}
	}
	return Folder{}, false
}

func (lib *Library) findFolderByPath(p string) (int, bool) {
	for i, f := range lib.folders {
		if f.Path == p {
			return i, true
		}
	}
	return -1, false
}

func (lib *Library) findItemByPath(p string) (int, bool) {
	for i, it := range lib.items {
		if it.FilePath == p {
			return i, true
		}
	}
	return -1, false
}

// parseFolder implements 4.C parse_folder: ensure the Folder record for
// path exists (creating or refreshing it), then recurse into
// subdirectories and (re-)probe files.
func (lib *Library) parseFolder(path string, parentID uint64) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	base := filepath.Base(strings.TrimRight(path, string(filepath.Separator)))
	if strings.HasPrefix(base, ".") && path != "" {
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}

	mtime := fi.ModTime().Unix()
	childCount := uint32(len(entries))

	folderIdx, exists := lib.findFolderByPath(path)
	var folderID uint64
	if exists {
		folderID = lib.folders[folderIdx].ID
		if mtime > lib.folders[folderIdx].LastModified {
			lib.folders[folderIdx].LastModified = mtime
			lib.folders[folderIdx].ChildCount = childCount
		}
	} else {
		folderID = lib.allocID()
		lib.folders = append(lib.folders, Folder{
			ID:           folderID,
			ParentID:     parentID,
			Title:        base,
			Path:         path,
			ChildCount:   childCount,
			LastModified: mtime,
		})
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childPath := filepath.Join(path, name)
		if entry.IsDir() {
			lib.parseFolder(childPath, folderID)
			continue
		}
		lib.syncFile(childPath, folderID)
	}
}

func (lib *Library) syncFile(path string, parentID uint64) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	mtime := fi.ModTime().Unix()

	if idx, ok := lib.findItemByPath(path); ok {
		if mtime > lib.items[idx].LastModified {
			if reprobed, err := lib.prober.Probe(path); err == nil {
				reprobed.ID, reprobed.ParentID = lib.items[idx].ID, lib.items[idx].ParentID
				stampThumbnailID(&reprobed)
				lib.items[idx] = reprobed
			}
		}
		return
	}

	item, err := lib.prober.Probe(path)
	if err != nil {
		lib.logger.Levelf(log.Debug, "probe failed for %q: %s", path, err)
		return
	}
	if item.Meta.FileName == "" || strings.HasPrefix(item.Meta.FileName, ".") {
		return
	}
	item.ID = lib.allocID()
	item.ParentID = parentID
	stampThumbnailID(&item)
	lib.items = append(lib.items, item)
}

// stampThumbnailID corrects the Thumbnail's ItemID once the owning Item's
// real ID is known: Probe runs before ID assignment, so it always leaves
// the thumbnail's ItemID at zero.
func stampThumbnailID(item *Item) {
	if thumb, ok := item.Thumbnail.Get(); ok {
		thumb.ItemID = item.ID
		item.Thumbnail = generics.Some(thumb)
	}
}
