// Package pathio exposes a filesystem-shaped interface over the DOS
// shell driver and XMODEM engine: the operations an FTP server actually
// needs (exists, stat, list, open/read/write/close, mkdir, rmdir,
// unlink, rename), each translated into a shell command or an XMODEM
// transfer against the single shared serial channel.
//
// Facade is the Go-native analogue of rclone/rclone's backend/ftp Fs
// type: one instance per connection, holding a reference to process-wide
// shared state (there: a pooled ftp.ServerConn; here: the one serial
// channel and its directory-listing cache) behind a mutex that admits
// only one in-flight operation across every connection at a time.
package pathio

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daedaluz/comftp/internal/comerr"
	"github.com/daedaluz/comftp/internal/dirlist"
	"github.com/daedaluz/comftp/internal/serialio"
	"github.com/daedaluz/comftp/internal/shell"
	"github.com/daedaluz/comftp/internal/xmodem"
)

// OpenMode selects the direction of an open file transfer.
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
)

// Stat is the synthetic stat record exposed for every path: size, mtime,
// a fixed link count, and a fixed mode (DOS has no separate ctime and no
// permission bits worth reporting).
type Stat struct {
	Size    int64
	ModTime time.Time
	Nlink   uint32
	Mode    uint32
}

// dosFileMode is 0o100777: a regular file with rwxrwxrwx, the constant
// mode every entry gets regardless of its real DOS attributes.
const dosFileMode = 0100777

// tailTransferReady is the literal tail the shell driver watches for
// after an ftrans-family command to know the far side is ready to speak
// XMODEM.
const tailTransferReady = " ... "

// noTimeout stands in for waits with no hard ceiling, such as waiting
// for the receive-open NAK: the device will eventually respond or the
// link is already dead elsewhere.
const noTimeout = 365 * 24 * time.Hour

// openState is the per-transfer state kept between Open and CloseFile.
type openState struct {
	mode     OpenMode
	path     VPath
	sender   *xmodem.Sender
	receiver *xmodem.Receiver
}

// Facade is one FTP connection's view onto the shared serial link. mu
// and cache are shared across every Facade sharing the same process;
// the rest is per-connection.
type Facade struct {
	ch  *serialio.Channel
	mu  *sync.Mutex
	cache *dirlist.Cache
	drv *shell.Driver
	log *logrus.Entry

	allocHint *int
	open      *openState

	sendTemplate, sizeTemplate, receiveTemplate string
}

// New builds a Facade sharing ch/mu/cache with every other connection's
// Facade. sendTpl/sizeTpl/receiveTpl are the configured ftrans command
// templates.
func New(ch *serialio.Channel, mu *sync.Mutex, cache *dirlist.Cache, sendTpl, sizeTpl, receiveTpl string) *Facade {
	return &Facade{
		ch:            ch,
		mu:            mu,
		cache:         cache,
		drv:           shell.New(ch),
		log:           logrus.WithField("component", "pathio"),
		sendTemplate:  sendTpl,
		sizeTemplate:  sizeTpl,
		receiveTemplate: receiveTpl,
	}
}

// dirLocked returns the (possibly cached) listing for the DOS directory
// argument arg. ok is false for an absent listing ("File not found" /
// "Invalid drive"), which is never cached. Caller must hold mu.
func (f *Facade) dirLocked(ctx context.Context, arg string) (entries []dirlist.Entry, ok bool, err error) {
	if cached, hit := f.cache.Get(arg); hit {
		return cached, true, nil
	}
	capture, err := f.drv.Run(ctx, []byte("dir "+arg), shell.DefaultPromptTail)
	if err != nil {
		return nil, false, comerr.Wrap(comerr.KindDevice, "dir "+arg, err)
	}
	entries, ok = dirlist.Parse(capture)
	if !ok {
		return nil, false, nil
	}
	f.cache.Put(arg, entries)
	return entries, true, nil
}

// listRootLocked probes drive letters c..z, stopping at the first absent
// one: drives are assumed contiguous, so everything before a gap is
// present and everything from the gap on is not.
func (f *Facade) listRootLocked(ctx context.Context) ([]VPath, error) {
	var children []VPath
	for letter := 'c'; letter <= 'z'; letter++ {
		drive := string(letter)
		_, ok, err := f.dirLocked(ctx, drive+":")
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		children = append(children, Root.Child(drive))
	}
	return children, nil
}

func (f *Facade) existsLocked(ctx context.Context, p VPath) bool {
	switch {
	case p.IsRoot():
		return true
	case p.Depth() == 1:
		drives, err := f.listRootLocked(ctx)
		if err != nil {
			return false
		}
		for _, d := range drives {
			if d.Drive() == p.Drive() {
				return true
			}
		}
		return false
	default:
		entries, ok, err := f.dirLocked(ctx, p.Parent().dirArg())
		if err != nil || !ok {
			return false
		}
		name := p.Name()
		for _, e := range entries {
			if e.Name == name {
				return true
			}
		}
		return false
	}
}

// Exists never raises on a missing path; it simply returns false.
func (f *Facade) Exists(ctx context.Context, p VPath) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existsLocked(ctx, p)
}

// IsDir reports whether p is a directory. Root and drive roots always
// are. A path that can't be found in its parent's listing is an error,
// not false.
func (f *Facade) IsDir(ctx context.Context, p VPath) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Depth() < 2 {
		return true, nil
	}
	entries, ok, err := f.dirLocked(ctx, p.Parent().dirArg())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, comerr.New(comerr.KindNotExist, "is_dir: "+p.String())
	}
	name := p.Name()
	for _, e := range entries {
		if e.Name == name {
			return e.IsDir, nil
		}
	}
	return false, comerr.New(comerr.KindNotExist, "is_dir: "+p.String())
}

// IsFile is the negation of IsDir.
func (f *Facade) IsFile(ctx context.Context, p VPath) (bool, error) {
	isDir, err := f.IsDir(ctx, p)
	if err != nil {
		return false, err
	}
	return !isDir, nil
}

// List returns the immediate children of p: reachable drive letters for
// the root, or the parsed entries of p's own DIR listing otherwise.
func (f *Facade) List(ctx context.Context, p VPath) ([]VPath, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.IsRoot() {
		return f.listRootLocked(ctx)
	}
	entries, ok, err := f.dirLocked(ctx, p.dirArg())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, comerr.New(comerr.KindNotExist, "list: "+p.String())
	}
	children := make([]VPath, 0, len(entries))
	for _, e := range entries {
		children = append(children, p.Child(e.Name))
	}
	return children, nil
}

func (f *Facade) statLocked(ctx context.Context, p VPath) (Stat, error) {
	if p.Depth() < 2 {
		return Stat{Nlink: 1, Mode: dosFileMode}, nil
	}
	entries, ok, err := f.dirLocked(ctx, p.Parent().dirArg())
	if err != nil {
		return Stat{}, err
	}
	if !ok {
		return Stat{}, comerr.New(comerr.KindNotExist, "stat: "+p.String())
	}
	name := p.Name()
	for _, e := range entries {
		if e.Name == name {
			return Stat{Size: e.Size, ModTime: e.ModTime, Nlink: 1, Mode: dosFileMode}, nil
		}
	}
	return Stat{}, comerr.New(comerr.KindNotExist, "stat: "+p.String())
}

// Stat returns the synthetic record for root/drive roots, or the entry's
// real size and mtime otherwise.
func (f *Facade) Stat(ctx context.Context, p VPath) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statLocked(ctx, p)
}

// Mkdir walks upward from p collecting every missing ancestor and
// creates them shallowest first. parents is accepted to match the
// signature the FTP layer calls with but, like the system this was
// ported from, is not consulted: every missing ancestor is always
// created.
func (f *Facade) Mkdir(ctx context.Context, p VPath, parents bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var missing []VPath
	cur := p
	for !f.existsLocked(ctx, cur) {
		missing = append(missing, cur)
		cur = cur.Parent()
	}
	if len(missing) == 0 {
		return nil
	}
	if !cur.IsRoot() {
		f.cache.Evict(cur.dirArg())
	}
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	for _, m := range missing {
		if _, err := f.drv.Run(ctx, []byte("md "+m.DosPath()), shell.DefaultPromptTail); err != nil {
			return comerr.Wrap(comerr.KindDevice, "md "+m.DosPath(), err)
		}
	}
	return nil
}

// Rmdir removes a directory. Depth-1 targets (drive roots) are silently
// ignored, matching the original's guarded no-op.
func (f *Facade) Rmdir(ctx context.Context, p VPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Depth() <= 1 {
		return nil
	}
	f.cache.Evict(p.Parent().dirArg())
	_, err := f.drv.Run(ctx, []byte("rd "+p.DosPath()), shell.DefaultPromptTail)
	return comerr.Wrap(comerr.KindDevice, "rd "+p.DosPath(), err)
}

// Unlink removes a file, same depth guard as Rmdir.
func (f *Facade) Unlink(ctx context.Context, p VPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Depth() <= 1 {
		return nil
	}
	f.cache.Evict(p.Parent().dirArg())
	_, err := f.drv.Run(ctx, []byte("del "+p.DosPath()), shell.DefaultPromptTail)
	return comerr.Wrap(comerr.KindDevice, "del "+p.DosPath(), err)
}

// Rename issues a ren command using only dst's name component —
// cross-directory rename is not supported, matching DOS's own ren.
func (f *Facade) Rename(ctx context.Context, src, dst VPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src.Depth() <= 1 {
		return nil
	}
	f.cache.Evict(src.dirArg())
	f.cache.Evict(src.Parent().dirArg())
	cmd := "ren " + src.DosPath() + " " + dst.Name()
	_, err := f.drv.Run(ctx, []byte(cmd), shell.DefaultPromptTail)
	return comerr.Wrap(comerr.KindDevice, cmd, err)
}

// Open initializes per-open transfer state and runs the shell command
// that puts the far end into XMODEM mode. The channel mutex stays held
// from here until CloseFile, since the whole transfer is one
// uninterruptible use of the shared serial resource.
func (f *Facade) Open(ctx context.Context, p VPath, mode OpenMode) error {
	f.mu.Lock()

	switch mode {
	case ModeRead:
		st, err := f.statLocked(ctx, p)
		if err != nil {
			f.mu.Unlock()
			return err
		}
		cmd := renderTemplate(f.sendTemplate, p.DosPath(), "")
		if _, err := f.drv.Run(ctx, []byte(cmd), tailTransferReady); err != nil {
			f.mu.Unlock()
			return comerr.Wrap(comerr.KindDevice, cmd, err)
		}
		recv := xmodem.NewReceiver(f.ch, st.Size)
		if err := recv.Start(); err != nil {
			f.mu.Unlock()
			return comerr.Wrap(comerr.KindDevice, "open: xmodem receiver start", err)
		}
		f.open = &openState{mode: ModeRead, path: p, receiver: recv}

	case ModeWrite:
		f.cache.Evict(p.Parent().dirArg())
		var cmd string
		if f.allocHint != nil {
			tpl := f.receiveTemplate + " " + f.sizeTemplate
			cmd = renderTemplate(tpl, p.DosPath(), strconv.Itoa(*f.allocHint))
			f.allocHint = nil
		} else {
			cmd = renderTemplate(f.receiveTemplate, p.DosPath(), "")
		}
		if _, err := f.drv.Run(ctx, []byte(cmd), tailTransferReady); err != nil {
			f.mu.Unlock()
			return comerr.Wrap(comerr.KindDevice, cmd, err)
		}
		if _, ok := f.ch.ReadUntil(ctx, []byte{xmodem.NAK}, noTimeout); !ok {
			f.mu.Unlock()
			return comerr.New(comerr.KindTimeout, "open: waiting for receive NAK")
		}
		f.open = &openState{mode: ModeWrite, path: p, sender: xmodem.NewSender(f.ch)}

	default:
		f.mu.Unlock()
		return comerr.New(comerr.KindUnsupported, "open: mode not supported")
	}

	return nil
}

// Write feeds data into the active XMODEM send buffer.
func (f *Facade) Write(p []byte) (int, error) {
	if f.open == nil || f.open.mode != ModeWrite {
		return 0, comerr.New(comerr.KindUnsupported, "write: no open write transfer")
	}
	n, err := f.open.sender.Write(p)
	if err != nil {
		return n, comerr.Wrap(comerr.KindDevice, "write: xmodem send", err)
	}
	return n, nil
}

// Read pulls the next XMODEM block, truncated to the remaining byte
// budget. A nil, error-free return signals end of file.
func (f *Facade) Read() ([]byte, error) {
	if f.open == nil || f.open.mode != ModeRead {
		return nil, comerr.New(comerr.KindUnsupported, "read: no open read transfer")
	}
	block, err := f.open.receiver.ReadBlock()
	if err != nil {
		return nil, comerr.Wrap(comerr.KindDevice, "read: xmodem receive", err)
	}
	return block, nil
}

// CloseFile finishes a write transfer (pad, EOT, ACK, ETB) and releases
// the channel mutex Open acquired. A read transfer needs no closing
// handshake of its own.
func (f *Facade) CloseFile() error {
	if f.open == nil {
		return nil
	}
	defer func() {
		f.open = nil
		f.mu.Unlock()
	}()
	if f.open.mode == ModeWrite {
		if err := f.open.sender.Close(); err != nil {
			return comerr.Wrap(comerr.KindDevice, "close: xmodem send finalize", err)
		}
	}
	return nil
}

// SetAllocHint records or clears the ALLO-supplied size hint for the
// next write-open. Called outside any open transfer, so it needs no
// locking: a single FTP connection's commands already arrive serialized
// from the control connection.
func (f *Facade) SetAllocHint(n *int) {
	f.allocHint = n
}
