// Package ftpdriver adapts internal/pathio.Facade onto ftpserverlib's
// driver interfaces: one MainDriver for the whole process, handing out a
// fresh Fs (the ClientDriver) per connection, every one of them sharing
// the same serial channel, mutex, and listing cache.
package ftpdriver

import (
	"crypto/tls"
	"sync"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/sirupsen/logrus"

	"github.com/daedaluz/comftp/internal/dirlist"
	"github.com/daedaluz/comftp/internal/serialio"
)

// Templates bundles the three configurable ftrans command templates,
// passed straight through to every connection's Facade.
type Templates struct {
	Send    string
	Size    string
	Receive string
}

// MainDriver is the process-wide ftpserverlib.MainDriver: anonymous auth
// only, one shared serial channel/cache/mutex handed to every connection.
type MainDriver struct {
	ch         *serialio.Channel
	mu         *sync.Mutex
	cache      *dirlist.Cache
	templates  Templates
	listenAddr string
	log        *logrus.Entry
}

// NewMainDriver builds the process-wide driver. listenAddr is the
// host:port the FTP server listens on.
func NewMainDriver(ch *serialio.Channel, listenAddr string, templates Templates) *MainDriver {
	return &MainDriver{
		ch:         ch,
		mu:         &sync.Mutex{},
		cache:      dirlist.NewCache(),
		templates:  templates,
		listenAddr: listenAddr,
		log:        logrus.WithField("component", "ftpdriver"),
	}
}

// GetSettings returns the server-wide configuration: anonymous only, no
// TLS, everything else at ftpserverlib's defaults.
func (d *MainDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{
		ListenAddr: d.listenAddr,
		Banner:     "comftp",
	}, nil
}

// ClientConnected logs the new connection and sends the banner.
func (d *MainDriver) ClientConnected(cc ftpserver.ClientContext) (string, error) {
	d.log.WithField("client", cc.ID()).Info("client connected")
	return "comftp ready", nil
}

// ClientDisconnected logs the departure; there is no per-connection
// resource to release beyond the Fs/Facade itself, which is garbage
// collected once ftpserverlib drops its reference.
func (d *MainDriver) ClientDisconnected(cc ftpserver.ClientContext) {
	d.log.WithField("client", cc.ID()).Info("client disconnected")
}

// AuthUser always succeeds — anonymous access only, no credential
// checking — and hands back a fresh Fs bound to the shared channel,
// mutex, and cache.
func (d *MainDriver) AuthUser(cc ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	return newFs(d.ch, d.mu, d.cache, d.templates), nil
}

// GetTLSConfig returns no TLS configuration; encryption is out of scope.
func (d *MainDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, nil
}
