package ftpdriver

import (
	"io"
	"os"

	"github.com/daedaluz/comftp/internal/comerr"
	"github.com/daedaluz/comftp/internal/pathio"
)

// transfer implements ftpserverlib.FileTransfer (io.Reader, io.Writer,
// io.Seeker, io.Closer) over one open pathio.Facade transfer. Seek only
// accepts offset 0 — resuming a partial transfer is not supported.
type transfer struct {
	facade  *pathio.Facade
	mode    pathio.OpenMode
	pending []byte // unconsumed tail of the last XMODEM block read
}

func (t *transfer) Read(p []byte) (int, error) {
	if t.mode != pathio.ModeRead {
		return 0, comerr.New(comerr.KindUnsupported, "read: transfer is write-only")
	}
	for len(t.pending) == 0 {
		block, err := t.facade.Read()
		if err != nil {
			return 0, err
		}
		if len(block) == 0 {
			return 0, io.EOF
		}
		t.pending = block
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *transfer) Write(p []byte) (int, error) {
	if t.mode != pathio.ModeWrite {
		return 0, comerr.New(comerr.KindUnsupported, "write: transfer is read-only")
	}
	return t.facade.Write(p)
}

func (t *transfer) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekStart {
		return 0, nil
	}
	return 0, comerr.New(comerr.KindUnsupported, "seek: resume not supported")
}

func (t *transfer) Close() error {
	return t.facade.CloseFile()
}

// file adapts a transfer to the much larger afero.File interface, for
// the Create/Open/OpenFile paths ftpserverlib falls back to when it
// isn't driving a transfer through GetHandle directly.
type file struct {
	*transfer
	fs   *Fs
	name string
}

func (f *file) Name() string { return f.name }

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	if off != 0 {
		return 0, comerr.New(comerr.KindUnsupported, "read_at: random access not supported")
	}
	return f.Read(p)
}

func (f *file) WriteAt(p []byte, off int64) (int, error) {
	if off != 0 {
		return 0, comerr.New(comerr.KindUnsupported, "write_at: random access not supported")
	}
	return f.Write(p)
}

func (f *file) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *file) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := f.fs.ReadDir(f.name)
	if err != nil {
		return nil, err
	}
	if count > 0 && count < len(infos) {
		infos = infos[:count]
	}
	return infos, nil
}

func (f *file) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func (f *file) Stat() (os.FileInfo, error) {
	return f.fs.Stat(f.name)
}

func (f *file) Sync() error { return nil }

func (f *file) Truncate(size int64) error {
	return comerr.New(comerr.KindUnsupported, "truncate: not supported")
}
