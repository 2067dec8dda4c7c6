// Package nfsmount serves the nomenclature projection over NFS. It adapts
// graph.Graph to billy.Filesystem for use with willscott/go-nfs. The mount
// is read-only.
package nfsmount

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/tarim/internal/graph"
)

var errReadOnly = fmt.Errorf("read-only filesystem")

// ReportName is the virtual root file carrying the report of the run the
// projection was built from.
const ReportName = "_report.json"

// GraphFS adapts graph.Graph to billy.Filesystem.
type GraphFS struct {
	graph     graph.Graph
	mountTime time.Time

	mu     sync.RWMutex
	report []byte
}

// NewGraphFS creates a billy.Filesystem backed by g.
func NewGraphFS(g graph.Graph) *GraphFS {
	return &GraphFS{graph: g, mountTime: time.Now()}
}

// SetReport replaces the content of the virtual report file. A nil report
// hides the file.
func (fs *GraphFS) SetReport(data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.report = data
}

func (fs *GraphFS) reportData() []byte {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.report
}

// --- billy.Basic ---

func (fs *GraphFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *GraphFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *GraphFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}

	if filename == "/"+ReportName {
		if data := fs.reportData(); data != nil {
			return &bytesFile{name: ReportName, data: data}, nil
		}
	}

	node, err := fs.graph.GetNode(filename)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}
	if node.Mode.IsDir() {
		return nil, &os.PathError{Op: "open", Path: filename, Err: fmt.Errorf("is a directory")}
	}

	// Content is captured at open so a hot swap cannot change a file mid-read.
	return &bytesFile{name: filename, data: node.Data}, nil
}

func (fs *GraphFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

func (fs *GraphFS) Rename(oldpath, newpath string) error {
	return errReadOnly
}

func (fs *GraphFS) Remove(filename string) error {
	return errReadOnly
}

func (fs *GraphFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *GraphFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *GraphFS) ReadDir(path string) ([]os.FileInfo, error) {
	path = cleanPath(path)

	if path != "/" {
		node, err := fs.graph.GetNode(path)
		if err != nil {
			return nil, &os.PathError{Op: "readdir", Path: path, Err: os.ErrNotExist}
		}
		if !node.Mode.IsDir() {
			return nil, &os.PathError{Op: "readdir", Path: path, Err: fmt.Errorf("not a directory")}
		}
	}

	children, err := fs.graph.ListChildren(path)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: os.ErrNotExist}
	}

	infos := make([]os.FileInfo, 0, len(children)+1)
	if path == "/" {
		if data := fs.reportData(); data != nil {
			infos = append(infos, fs.reportInfo(data))
		}
	}
	for _, childID := range children {
		childNode, err := fs.graph.GetNode(childID)
		if err != nil {
			continue
		}
		infos = append(infos, fs.nodeToFileInfo(childNode))
	}
	return infos, nil
}

func (fs *GraphFS) MkdirAll(filename string, perm os.FileMode) error {
	return errReadOnly
}

// --- billy.Symlink ---

func (fs *GraphFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)

	if filename == "/" {
		return &staticFileInfo{
			name:    "/",
			mode:    os.ModeDir | 0o555,
			modTime: fs.mountTime,
		}, nil
	}
	if filename == "/"+ReportName {
		if data := fs.reportData(); data != nil {
			return fs.reportInfo(data), nil
		}
	}

	node, err := fs.graph.GetNode(filename)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
	}
	return fs.nodeToFileInfo(node), nil
}

func (fs *GraphFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *GraphFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *GraphFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *GraphFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *GraphFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// --- internals ---

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(path string) string {
	path = filepath.Clean("/" + path)
	if path == "." {
		return "/"
	}
	return path
}

func (fs *GraphFS) reportInfo(data []byte) os.FileInfo {
	return &staticFileInfo{
		name:    ReportName,
		size:    int64(len(data)),
		mode:    0o444,
		modTime: fs.mountTime,
	}
}

func (fs *GraphFS) nodeToFileInfo(n *graph.Node) os.FileInfo {
	mode := os.FileMode(0o444)
	if n.Mode.IsDir() {
		mode = os.ModeDir | 0o555
	}
	modTime := n.ModTime
	if modTime.IsZero() {
		modTime = fs.mountTime
	}
	return &staticFileInfo{
		name:    filepath.Base(n.ID),
		size:    n.ContentSize(),
		mode:    mode,
		modTime: modTime,
	}
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*GraphFS)(nil)
	_ billy.Capable    = (*GraphFS)(nil)
	_ billy.File       = (*bytesFile)(nil)
)
