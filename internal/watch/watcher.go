// Package watch runs one IMAP connection per configured account and
// reports new mail and fatal errors to whoever registered for them.
package watch

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/ohjames/catfriend/config"
)

// Watcher owns the connection to one account. Register callbacks with
// OnError and OnNewMail before Start; Disconnect requests a stop and
// Join blocks until the watch goroutine has exited.
type Watcher struct {
	desc    config.Account
	verbose bool

	onError   func(id, msg string)
	onNewMail func(id string, subjects []string)

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool

	// conn is the raw connection of the cycle in flight, registered
	// before the IMAP greeting is read so Disconnect can cut a dial
	// that is still handshaking.
	mu   sync.Mutex
	conn net.Conn

	hasBaseline bool
	highestUID  uint32
	seen        map[uint32]bool
}

// New builds a watcher from a validated account descriptor.
func New(desc config.Account, rt config.Runtime) *Watcher {
	return &Watcher{
		desc:    desc,
		verbose: rt.Verbose,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		seen:    make(map[uint32]bool),
	}
}

// ID returns the account's diagnostic label.
func (w *Watcher) ID() string {
	return w.desc.ID
}

// OnError registers the fatal-error callback. Must be set before Start.
func (w *Watcher) OnError(fn func(id, msg string)) {
	w.onError = fn
}

// OnNewMail registers the new-mail callback. Must be set before Start.
func (w *Watcher) OnNewMail(fn func(id string, subjects []string)) {
	w.onNewMail = fn
}

// Start spawns the watch goroutine.
func (w *Watcher) Start() {
	if w.started {
		return
	}
	w.started = true
	go w.run()
}

// Disconnect requests a stop. It never blocks: the stop channel is
// closed and any live connection is torn down so a blocked read
// returns promptly. Idempotent.
func (w *Watcher) Disconnect() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		if w.conn != nil {
			w.conn.Close()
		}
		w.mu.Unlock()
	})
}

// Join blocks until the watch goroutine has exited. Returns
// immediately if Start was never called.
func (w *Watcher) Join() {
	if !w.started {
		return
	}
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)

	failures := 0
	for {
		err := w.cycle()
		if w.stopping() {
			return
		}
		if err != nil {
			failures++
			// Before the first successful cycle there is nothing to
			// fall back on; afterwards a single failure gets one
			// retry, a second consecutive one is fatal.
			if !w.hasBaseline || failures > 1 {
				w.reportError(err)
				return
			}
			log.Printf("[%s] check failed: %v (retrying in %s)", w.desc.ID, err, w.desc.ErrorTimeout)
			if !w.sleep(w.desc.ErrorTimeout) {
				return
			}
			continue
		}
		failures = 0
		if !w.sleep(w.desc.CheckTimeout) {
			return
		}
	}
}

// cycle performs one connect/check/logout pass.
func (w *Watcher) cycle() error {
	c, err := w.dial()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		c.Logout()
		w.setConn(nil)
	}()

	if err := c.Login(w.desc.Login, w.desc.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	mbox, err := c.Select(w.desc.Mailbox, true)
	if err != nil {
		return fmt.Errorf("select %s: %w", w.desc.Mailbox, err)
	}

	if !w.hasBaseline {
		return w.baseline(c, mbox)
	}

	subjects, err := w.fetchNew(c)
	if err != nil {
		return err
	}
	if len(subjects) > 0 {
		w.logf("%d new message(s)", len(subjects))
		if w.onNewMail != nil {
			w.onNewMail(w.desc.ID, subjects)
		}
	}
	return nil
}

func (w *Watcher) dial() (*client.Client, error) {
	addr := net.JoinHostPort(w.desc.Host, strconv.Itoa(w.desc.Port))
	dialer := &net.Dialer{Timeout: w.desc.SocketTimeout}

	var conn net.Conn
	var err error
	if w.desc.NoSSL {
		conn, err = dialer.Dial("tcp", addr)
	} else {
		var tlsConfig *tls.Config
		tlsConfig, err = w.tlsConfig()
		if err != nil {
			return nil, err
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	}
	if err != nil {
		return nil, err
	}
	w.setConn(conn)

	// Bound the greeting read too, then let the client's own command
	// timeout take over.
	conn.SetDeadline(time.Now().Add(w.desc.SocketTimeout))
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		w.setConn(nil)
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	c.Timeout = w.desc.SocketTimeout
	return c, nil
}

// tlsConfig builds the TLS client config, pinning the configured
// certificate as the only trusted root when one is set.
func (w *Watcher) tlsConfig() (*tls.Config, error) {
	if w.desc.Cert == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(w.desc.Cert)
	if err != nil {
		return nil, fmt.Errorf("read cert %s: %w", w.desc.Cert, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("cert %s: no certificates found", w.desc.Cert)
	}
	return &tls.Config{RootCAs: pool, ServerName: w.desc.Host}, nil
}

// baseline records the highest UID currently in the mailbox so that
// only mail arriving after startup is reported. Fresh per run, nothing
// persisted.
func (w *Watcher) baseline(c *client.Client, mbox *imap.MailboxStatus) error {
	if mbox.UidNext > 0 {
		w.highestUID = mbox.UidNext - 1
	} else if mbox.Messages > 0 {
		criteria := imap.NewSearchCriteria()
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(1, 0)
		uids, err := c.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("baseline search: %w", err)
		}
		for _, uid := range uids {
			if uid > w.highestUID {
				w.highestUID = uid
			}
		}
	}
	w.hasBaseline = true
	w.logf("watching %s (baseline uid %d)", w.desc.Mailbox, w.highestUID)
	return nil
}

// fetchNew returns the subjects of messages with a UID above the
// highest one already seen, and advances the high-water mark.
func (w *Watcher) fetchNew(c *client.Client) ([]string, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(w.highestUID+1, 0)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	// Some servers answer an empty UID range with the last message, so
	// filter against the high-water mark before fetching.
	fetchSet := new(imap.SeqSet)
	for _, uid := range uids {
		if uid > w.highestUID && !w.seen[uid] {
			fetchSet.AddNum(uid)
		}
	}
	if fetchSet.Empty() {
		return nil, nil
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}
	go func() {
		done <- c.UidFetch(fetchSet, items, messages)
	}()

	var subjects []string
	for msg := range messages {
		if w.seen[msg.Uid] {
			continue
		}
		w.seen[msg.Uid] = true
		if msg.Uid > w.highestUID {
			w.highestUID = msg.Uid
		}
		subjects = append(subjects, subjectOf(msg))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return subjects, nil
}

func subjectOf(msg *imap.Message) string {
	if msg.Envelope == nil || msg.Envelope.Subject == "" {
		return "(no subject)"
	}
	return msg.Envelope.Subject
}

func (w *Watcher) setConn(c net.Conn) {
	w.mu.Lock()
	w.conn = c
	w.mu.Unlock()
}

func (w *Watcher) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d or until Disconnect, whichever comes first. It
// reports whether the watcher should keep running.
func (w *Watcher) sleep(d time.Duration) bool {
	select {
	case <-w.stop:
		return false
	case <-time.After(d):
		return true
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(w.desc.ID, err.Error())
	} else {
		log.Printf("[%s] %v", w.desc.ID, err)
	}
}

func (w *Watcher) logf(format string, args ...interface{}) {
	if !w.verbose {
		return
	}
	log.Printf("[%s] %s", w.desc.ID, fmt.Sprintf(format, args...))
}
