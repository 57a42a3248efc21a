package config

import "time"

// Default timeouts applied to accounts that don't override them.
const (
	DefaultCheckTimeout  = 60 * time.Second
	DefaultErrorTimeout  = 60 * time.Second
	DefaultSocketTimeout = 60 * time.Second
	DefaultNotifyTimeout = 10 * time.Second
)

// Default IMAP ports, chosen by the nossl flag.
const (
	DefaultPortTLS   = 993
	DefaultPortPlain = 143
)

// Account describes one mail account to watch. Built once by the config
// parser and owned by the watcher constructed from it.
type Account struct {
	Host     string // host, without port
	Port     int    // explicit port, or the default for the dial mode
	ID       string // diagnostic label, defaults to Host
	Mailbox  string
	Login    string
	Password string
	Cert     string // optional path to a pinned server certificate (PEM)
	NoSSL    bool
	Work     bool

	CheckTimeout  time.Duration // delay between poll cycles
	ErrorTimeout  time.Duration // delay before retrying after a transient error
	SocketTimeout time.Duration // dial and command timeout
	NotifyTimeout time.Duration // how long a desktop notification stays up
}

// Globals holds the process-wide option values set before the first
// account in the config file.
type Globals struct {
	NotifyTimeout time.Duration
}

// DefaultGlobals returns the global option values used when the config
// file sets none.
func DefaultGlobals() Globals {
	return Globals{NotifyTimeout: DefaultNotifyTimeout}
}

// Runtime carries the per-run settings handed to constructors, so that
// nothing reads process-wide mutable state.
type Runtime struct {
	Verbose       bool
	SocketPath    string // control socket override, empty for the default
	NotifyTimeout time.Duration
}

// Filter returns the accounts that should be watched this run. Accounts
// flagged work are dropped unless work mode was requested. Input order
// is preserved.
func Filter(accounts []Account, workMode bool) []Account {
	kept := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Work && !workMode {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
