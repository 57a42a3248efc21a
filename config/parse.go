package config

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// parser accumulates tokens into a pending account. Each host token
// flushes the previous pending account into the result set; the final
// pending account is flushed at end of input.
type parser struct {
	pending  *Account
	accounts []Account
	defaults timeouts
	ids      map[string]bool
	line     int
}

// timeouts are the run-wide fallbacks, overridable per account. Setting
// a timeout field before the first host line changes the fallback
// instead of an account.
type timeouts struct {
	check  time.Duration
	error  time.Duration
	socket time.Duration
	notify time.Duration
}

// Load reads and parses the config file at path.
func Load(path string) ([]Account, Globals, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Globals{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse tokenizes a config source into validated accounts plus the
// global option values.
func Parse(r io.Reader) ([]Account, Globals, error) {
	p := &parser{
		defaults: timeouts{
			check:  DefaultCheckTimeout,
			error:  DefaultErrorTimeout,
			socket: DefaultSocketTimeout,
			notify: DefaultNotifyTimeout,
		},
		ids: make(map[string]bool),
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field, value := splitToken(line)
		if err := p.token(field, value); err != nil {
			return nil, Globals{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, Globals{}, fmt.Errorf("config: %w", err)
	}

	if err := p.flush(); err != nil {
		return nil, Globals{}, err
	}
	return p.accounts, Globals{NotifyTimeout: p.defaults.notify}, nil
}

// splitToken separates a line into its field name and value. The value
// is everything after the first run of whitespace, so passwords may
// contain spaces.
func splitToken(line string) (field, value string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

func (p *parser) token(field, value string) error {
	switch field {
	case "host":
		if value == "" {
			return p.errorf("host requires a value")
		}
		if err := p.flush(); err != nil {
			return err
		}
		host, port, err := splitHostPort(value)
		if err != nil {
			return p.errorf("invalid host %q: %v", value, err)
		}
		p.pending = &Account{Host: host, Port: port}
		return nil
	case "id", "mailbox", "login", "password", "cert":
		if value == "" {
			return p.errorf("%s requires a value", field)
		}
		a, err := p.account(field)
		if err != nil {
			return err
		}
		switch field {
		case "id":
			a.ID = value
		case "mailbox":
			a.Mailbox = value
		case "login":
			a.Login = value
		case "password":
			a.Password = value
		case "cert":
			a.Cert = value
		}
		return nil
	case "nossl", "work":
		if value != "" {
			return p.errorf("%s takes no value", field)
		}
		a, err := p.account(field)
		if err != nil {
			return err
		}
		if field == "nossl" {
			a.NoSSL = true
		} else {
			a.Work = true
		}
		return nil
	case "checkTimeout", "errorTimeout", "socketTimeout", "notifyTimeout":
		d, err := parseSeconds(value)
		if err != nil {
			return p.errorf("invalid %s: %v", field, err)
		}
		p.setTimeout(field, d)
		return nil
	default:
		return p.errorf("unknown field %q", field)
	}
}

// account returns the pending account, or an error when the field
// appears before any host line.
func (p *parser) account(field string) (*Account, error) {
	if p.pending == nil {
		return nil, p.errorf("%s before any host", field)
	}
	return p.pending, nil
}

// setTimeout stores a timeout on the pending account, or on the
// run-wide defaults when no account has started yet.
func (p *parser) setTimeout(field string, d time.Duration) {
	if p.pending == nil {
		switch field {
		case "checkTimeout":
			p.defaults.check = d
		case "errorTimeout":
			p.defaults.error = d
		case "socketTimeout":
			p.defaults.socket = d
		case "notifyTimeout":
			p.defaults.notify = d
		}
		return
	}
	switch field {
	case "checkTimeout":
		p.pending.CheckTimeout = d
	case "errorTimeout":
		p.pending.ErrorTimeout = d
	case "socketTimeout":
		p.pending.SocketTimeout = d
	case "notifyTimeout":
		p.pending.NotifyTimeout = d
	}
}

// flush validates the pending account and moves it into the result set.
func (p *parser) flush() error {
	if p.pending == nil {
		return nil
	}
	a := *p.pending
	p.pending = nil

	if a.ID == "" {
		a.ID = a.Host
	}
	if p.ids[a.ID] {
		return p.errorf("duplicate account id %q", a.ID)
	}
	p.ids[a.ID] = true

	if a.Login == "" || a.Password == "" {
		return p.errorf("account %q missing login or password", a.ID)
	}
	if a.Cert != "" {
		if _, err := os.Stat(a.Cert); err != nil {
			return p.errorf("account %q: cert file: %v", a.ID, err)
		}
	}

	if a.Mailbox == "" {
		a.Mailbox = "INBOX"
	}
	if a.Port == 0 {
		if a.NoSSL {
			a.Port = DefaultPortPlain
		} else {
			a.Port = DefaultPortTLS
		}
	}
	if a.CheckTimeout == 0 {
		a.CheckTimeout = p.defaults.check
	}
	if a.ErrorTimeout == 0 {
		a.ErrorTimeout = p.defaults.error
	}
	if a.SocketTimeout == 0 {
		a.SocketTimeout = p.defaults.socket
	}
	if a.NotifyTimeout == 0 {
		a.NotifyTimeout = p.defaults.notify
	}

	p.accounts = append(p.accounts, a)
	return nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("config: line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func splitHostPort(value string) (string, int, error) {
	if !strings.Contains(value, ":") {
		return value, 0, nil
	}
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("bad port %q", portStr)
	}
	return host, port, nil
}

func parseSeconds(value string) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("want a number of seconds, got %q", value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return time.Duration(n) * time.Second, nil
}
