package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func parseString(t *testing.T, s string) ([]Account, Globals) {
	t.Helper()
	accounts, globals, err := Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return accounts, globals
}

func TestParseMultipleAccounts(t *testing.T) {
	accounts, _ := parseString(t, `
# personal accounts
host imap.example.com
login alice
password hunter2

host mail.example.org:1993
id backup
login bob
password secret word
`)

	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}

	a := accounts[0]
	if a.Host != "imap.example.com" || a.Port != DefaultPortTLS {
		t.Errorf("first account host/port = %s/%d", a.Host, a.Port)
	}
	if a.ID != "imap.example.com" {
		t.Errorf("id should default to host, got %q", a.ID)
	}
	if a.Mailbox != "INBOX" {
		t.Errorf("mailbox should default to INBOX, got %q", a.Mailbox)
	}
	if a.CheckTimeout != DefaultCheckTimeout {
		t.Errorf("checkTimeout = %s, want default", a.CheckTimeout)
	}

	b := accounts[1]
	if b.Host != "mail.example.org" || b.Port != 1993 {
		t.Errorf("second account host/port = %s/%d", b.Host, b.Port)
	}
	if b.ID != "backup" {
		t.Errorf("second account id = %q", b.ID)
	}
	if b.Password != "secret word" {
		t.Errorf("password with spaces mangled: %q", b.Password)
	}
}

func TestParseGlobalAndAccountTimeouts(t *testing.T) {
	accounts, globals, err := Parse(strings.NewReader(`
notifyTimeout 5
checkTimeout 30

host a.example.com
login u
password p

host b.example.com
login u
password p
checkTimeout 120
notifyTimeout 2
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if globals.NotifyTimeout != 5*time.Second {
		t.Errorf("global notifyTimeout = %s, want 5s", globals.NotifyTimeout)
	}

	a, b := accounts[0], accounts[1]
	if a.CheckTimeout != 30*time.Second {
		t.Errorf("a.CheckTimeout = %s, want global 30s", a.CheckTimeout)
	}
	if a.NotifyTimeout != 5*time.Second {
		t.Errorf("a.NotifyTimeout = %s, want global 5s", a.NotifyTimeout)
	}
	if b.CheckTimeout != 120*time.Second {
		t.Errorf("b.CheckTimeout = %s, want override 120s", b.CheckTimeout)
	}
	if b.NotifyTimeout != 2*time.Second {
		t.Errorf("b.NotifyTimeout = %s, want override 2s", b.NotifyTimeout)
	}
}

func TestParseFlags(t *testing.T) {
	accounts, _ := parseString(t, `
host plain.example.com
nossl
work
login u
password p
`)
	a := accounts[0]
	if !a.NoSSL || !a.Work {
		t.Errorf("flags not set: nossl=%v work=%v", a.NoSSL, a.Work)
	}
	if a.Port != DefaultPortPlain {
		t.Errorf("nossl port = %d, want %d", a.Port, DefaultPortPlain)
	}
}

func TestParseCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.pem")
	if err := os.WriteFile(certPath, []byte("dummy"), 0644); err != nil {
		t.Fatal(err)
	}

	accounts, _ := parseString(t, `
host imap.example.com
cert `+certPath+`
login u
password p
`)
	if accounts[0].Cert != certPath {
		t.Errorf("cert = %q, want %q", accounts[0].Cert, certPath)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "unknown field",
			in:   "host h\nlogin u\npassword p\nfrobnicate yes\n",
			want: "unknown field",
		},
		{
			name: "missing credentials",
			in:   "host h\nlogin u\n",
			want: "missing login or password",
		},
		{
			name: "field before host",
			in:   "login u\n",
			want: "before any host",
		},
		{
			name: "duplicate id",
			in:   "host h\nlogin u\npassword p\nhost h\nlogin u\npassword p\n",
			want: "duplicate account id",
		},
		{
			name: "missing cert file",
			in:   "host h\ncert /does/not/exist.pem\nlogin u\npassword p\n",
			want: "cert file",
		},
		{
			name: "flag with value",
			in:   "host h\nnossl yes\n",
			want: "takes no value",
		},
		{
			name: "bad timeout",
			in:   "checkTimeout soon\n",
			want: "invalid checkTimeout",
		},
		{
			name: "negative timeout",
			in:   "checkTimeout -5\n",
			want: "invalid checkTimeout",
		},
		{
			name: "host without value",
			in:   "host\n",
			want: "host requires a value",
		},
		{
			name: "bad port",
			in:   "host h:0\n",
			want: "invalid host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(strings.NewReader(tt.in))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	accounts, globals := parseString(t, "# nothing but comments\n\n")
	if len(accounts) != 0 {
		t.Errorf("got %d accounts, want 0", len(accounts))
	}
	if globals.NotifyTimeout != DefaultNotifyTimeout {
		t.Errorf("globals.NotifyTimeout = %s, want default", globals.NotifyTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
