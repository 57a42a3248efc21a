package watch

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"github.com/ohjames/catfriend/config"
)

func testAccount(id string) config.Account {
	return config.Account{
		Host:          "127.0.0.1",
		Port:          1, // nothing listens here
		ID:            id,
		Mailbox:       "INBOX",
		Login:         "u",
		Password:      "p",
		CheckTimeout:  time.Second,
		ErrorTimeout:  10 * time.Millisecond,
		SocketTimeout: 100 * time.Millisecond,
		NotifyTimeout: time.Second,
	}
}

func TestJoinWithoutStart(t *testing.T) {
	w := New(testAccount("a"), config.Runtime{})
	w.Disconnect()
	w.Join() // must return immediately
}

func TestDisconnectIdempotent(t *testing.T) {
	w := New(testAccount("a"), config.Runtime{})
	w.Disconnect()
	w.Disconnect()
}

func TestConnectFailureReportsFatalError(t *testing.T) {
	w := New(testAccount("bad"), config.Runtime{})

	var mu sync.Mutex
	var gotID, gotMsg string
	reported := make(chan struct{})
	w.OnError(func(id, msg string) {
		mu.Lock()
		gotID, gotMsg = id, msg
		mu.Unlock()
		close(reported)
	})

	w.Start()
	select {
	case <-reported:
	case <-time.After(5 * time.Second):
		t.Fatal("error not reported for unreachable server")
	}
	w.Disconnect()
	w.Join()

	mu.Lock()
	defer mu.Unlock()
	if gotID != "bad" {
		t.Errorf("error reported for id %q, want %q", gotID, "bad")
	}
	if gotMsg == "" {
		t.Error("error message is empty")
	}
}

func TestDisconnectDuringDialIsNotAnError(t *testing.T) {
	// A listener that accepts and then says nothing, so the watcher
	// blocks waiting for the IMAP greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	acc := testAccount("slow")
	acc.NoSSL = true
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	acc.Host = host
	acc.Port, _ = strconv.Atoi(portStr)
	acc.SocketTimeout = 10 * time.Second

	w := New(acc, config.Runtime{})
	errored := make(chan struct{})
	w.OnError(func(id, msg string) { close(errored) })

	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Disconnect()

	joined := make(chan struct{})
	go func() {
		w.Join()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		t.Fatal("Join did not return after Disconnect")
	}

	select {
	case <-errored:
		t.Error("disconnect-induced failure was reported as a watcher error")
	default:
	}
}

func TestSubjectOf(t *testing.T) {
	tests := []struct {
		name string
		msg  *imap.Message
		want string
	}{
		{"nil envelope", &imap.Message{}, "(no subject)"},
		{"empty subject", &imap.Message{Envelope: &imap.Envelope{}}, "(no subject)"},
		{"subject", &imap.Message{Envelope: &imap.Envelope{Subject: "hi"}}, "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := subjectOf(tt.msg); got != tt.want {
				t.Errorf("subjectOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTLSConfigRequiresValidCert(t *testing.T) {
	acc := testAccount("a")
	acc.Cert = "/does/not/exist.pem"
	w := New(acc, config.Runtime{})
	if _, err := w.tlsConfig(); err == nil {
		t.Error("expected error for missing cert file")
	}

	acc.Cert = ""
	w = New(acc, config.Runtime{})
	cfg, err := w.tlsConfig()
	if err != nil || cfg != nil {
		t.Errorf("no cert should mean nil config, got %v, %v", cfg, err)
	}
}
