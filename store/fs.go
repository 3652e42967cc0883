package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// FS is a local-filesystem Storage backend, grounded on
// ImageSaverLib4.Storage.FileSystemStorage's FolderStructurizer: resource
// files are sharded into subdirectories by the first bytes of their name
// so no single directory accumulates unbounded entries.
type FS struct {
	root            string
	extension       string
	folderDepth     int
	maxResourceSize int64
	requiredWrapTag string

	current atomic.Int64
}

// NewFS creates an FS backend rooted at dir. folderDepth controls how
// many two-character shard directories are interposed between root
// and the resource file (0 disables sharding).
func NewFS(dir string, folderDepth int, maxResourceSize int64, requiredWrapTag string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if maxResourceSize <= 0 {
		maxResourceSize = DefaultMaxResourceSize
	}
	if folderDepth < 0 {
		folderDepth = 0
	}
	f := &FS{
		root:            dir,
		extension:       "bin",
		folderDepth:     folderDepth,
		maxResourceSize: maxResourceSize,
		requiredWrapTag: requiredWrapTag,
	}
	f.current.Store(f.treeSize())
	return f, nil
}

func (f *FS) Identifier() string      { return "local@" + f.root }
func (f *FS) MaxResourceSize() int64  { return f.maxResourceSize }
func (f *FS) RequiredWrapTag() string { return f.requiredWrapTag }

// path shards name into f.folderDepth nested directories named by
// successive two-character slices of name, same idea as FolderStructurizer.
func (f *FS) path(name string) string {
	parts := make([]string, 0, f.folderDepth+1)
	for i := 0; i < f.folderDepth && i*2+2 <= len(name); i++ {
		parts = append(parts, name[i*2:i*2+2])
	}
	parts = append(parts, name+"."+f.extension)
	return filepath.Join(append([]string{f.root}, parts...)...)
}

func (f *FS) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if os.IsNotExist(err) {
		return nil, &NotFound{Name: name}
	}
	if err != nil {
		return nil, &DownloadError{Name: name, Err: err}
	}
	return data, nil
}

func (f *FS) Save(_ context.Context, data []byte, _ cos.Cksum) (string, error) {
	name := cos.GenUUID()
	path := f.path(name)
	tmp := path + ".tmp." + cos.GenTie()
	file, err := cos.CreateFile(tmp)
	if err != nil {
		return "", &UploadError{Name: name, Err: err}
	}
	if _, err := file.Write(data); err != nil {
		cos.Close(file)
		_ = cos.RemoveFile(tmp)
		return "", &UploadError{Name: name, Err: err}
	}
	if err := cos.FlushClose(file); err != nil {
		_ = cos.RemoveFile(tmp)
		return "", &UploadError{Name: name, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = cos.RemoveFile(tmp)
		return "", &UploadError{Name: name, Err: err}
	}
	f.current.Add(int64(len(data)))
	return name, nil
}

func (f *FS) Delete(_ context.Context, name string) error {
	size, statErr := fileSize(f.path(name))
	if err := cos.RemoveFile(f.path(name)); err != nil {
		return err
	}
	if statErr == nil {
		f.current.Add(-size)
	}
	return nil
}

func (f *FS) List(_ context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasSuffix(base, "."+f.extension) {
			out = append(out, strings.TrimSuffix(base, "."+f.extension))
		}
		return nil
	})
	return out, err
}

func (f *FS) Wipe(_ context.Context) error {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.root, e.Name())); err != nil {
			return err
		}
	}
	f.current.Store(0)
	return nil
}

func (f *FS) TotalSize() int64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(f.root, &stat); err != nil {
		return -1
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}

func (f *FS) CurrentSize() int64 { return f.current.Load() }

func (f *FS) HasFreeSize(required int64) bool {
	total := f.TotalSize()
	if total < 0 {
		return true
	}
	return f.CurrentSize()+required <= total
}

func (f *FS) treeSize() int64 {
	var total int64
	_ = filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

var (
	_ Storage = (*FS)(nil)
	_ Sizable = (*FS)(nil)
)
