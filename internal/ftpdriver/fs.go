package ftpdriver

import (
	"context"
	"os"
	"sync"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"

	"github.com/daedaluz/comftp/internal/comerr"
	"github.com/daedaluz/comftp/internal/dirlist"
	"github.com/daedaluz/comftp/internal/pathio"
	"github.com/daedaluz/comftp/internal/serialio"
)

// Fs is the per-connection ftpserverlib.ClientDriver: an afero.Fs backed
// by a pathio.Facade. ftpserverlib's driver contract predates contexts,
// so every method here uses context.Background() — cancellation is
// additive in the facade below it, not required by this adapter.
type Fs struct {
	facade *pathio.Facade
}

func newFs(ch *serialio.Channel, mu *sync.Mutex, cache *dirlist.Cache, t Templates) *Fs {
	return &Fs{facade: pathio.New(ch, mu, cache, t.Send, t.Size, t.Receive)}
}

var bg = context.Background()

func (fs *Fs) Name() string { return "comftp" }

// fileMode returns the os.FileMode a directory entry or stat record gets
// exposed as: rwxrwxrwx plus the directory bit where applicable,
// discarding the DOS-side 0o100777 value's meaningless regular-file type
// bit.
func fileMode(isDir bool) os.FileMode {
	mode := os.FileMode(0777)
	if isDir {
		mode |= os.ModeDir
	}
	return mode
}

type fileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.mode&os.ModeDir != 0 }
func (fi *fileInfo) Sys() interface{}   { return nil }

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	p := pathio.NewVPath(name)
	st, err := fs.facade.Stat(bg, p)
	if err != nil {
		return nil, err
	}
	isDir := true
	if p.Depth() >= 2 {
		isDir, err = fs.facade.IsDir(bg, p)
		if err != nil {
			return nil, err
		}
	}
	return &fileInfo{name: p.Name(), size: st.Size, mode: fileMode(isDir), modTime: st.ModTime}, nil
}

// ReadDir implements ftpserverlib.ClientDriverExtensionFileList.
func (fs *Fs) ReadDir(name string) ([]os.FileInfo, error) {
	p := pathio.NewVPath(name)
	children, err := fs.facade.List(bg, p)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(children))
	for _, c := range children {
		info, err := fs.Stat(c.String())
		if err != nil {
			continue // vanished between List and Stat; skip rather than fail the whole listing
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// AllocateSpace implements ftpserverlib.ClientDriverExtensionAllocate,
// routing ALLO into the next write-open's size hint.
func (fs *Fs) AllocateSpace(size int) error {
	fs.facade.SetAllocHint(&size)
	return nil
}

// RemoveDir implements ftpserverlib.ClientDriverExtensionRemoveDir,
// keeping RMD distinct from DELE's Remove.
func (fs *Fs) RemoveDir(name string) error {
	return fs.facade.Rmdir(bg, pathio.NewVPath(name))
}

// GetHandle implements ftpserverlib.ClientDriverExtentionFileTransfer.
func (fs *Fs) GetHandle(name string, flags int, offset int64) (ftpserver.FileTransfer, error) {
	if offset != 0 {
		return nil, comerr.New(comerr.KindUnsupported, "get_handle: resume not supported")
	}
	mode := pathio.ModeRead
	if flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		mode = pathio.ModeWrite
	}
	p := pathio.NewVPath(name)
	if err := fs.facade.Open(bg, p, mode); err != nil {
		return nil, err
	}
	return &transfer{facade: fs.facade, mode: mode}, nil
}

func (fs *Fs) Remove(name string) error {
	return fs.facade.Unlink(bg, pathio.NewVPath(name))
}

// RemoveAll has no recursive-delete analogue on the far end; it removes
// exactly the named entry, matching Remove/RemoveDir (spec scope never
// calls for recursive directory trees).
func (fs *Fs) RemoveAll(path string) error {
	p := pathio.NewVPath(path)
	isDir, err := fs.facade.IsDir(bg, p)
	if err != nil {
		return err
	}
	if isDir {
		return fs.facade.Rmdir(bg, p)
	}
	return fs.facade.Unlink(bg, p)
}

func (fs *Fs) Rename(oldname, newname string) error {
	return fs.facade.Rename(bg, pathio.NewVPath(oldname), pathio.NewVPath(newname))
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return fs.facade.Mkdir(bg, pathio.NewVPath(name), false)
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	return fs.facade.Mkdir(bg, pathio.NewVPath(path), true)
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return comerr.New(comerr.KindUnsupported, "chmod: not supported on a DOS filesystem")
}

func (fs *Fs) Chtimes(name string, atime, mtime time.Time) error {
	return comerr.New(comerr.KindUnsupported, "chtimes: not supported on a DOS filesystem")
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return comerr.New(comerr.KindUnsupported, "chown: not supported on a DOS filesystem")
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.openFile(name, pathio.ModeWrite)
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.openFile(name, pathio.ModeRead)
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	mode := pathio.ModeRead
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		mode = pathio.ModeWrite
	}
	return fs.openFile(name, mode)
}

func (fs *Fs) openFile(name string, mode pathio.OpenMode) (afero.File, error) {
	p := pathio.NewVPath(name)
	if err := fs.facade.Open(bg, p, mode); err != nil {
		return nil, err
	}
	return &file{transfer: &transfer{facade: fs.facade, mode: mode}, fs: fs, name: name}, nil
}
