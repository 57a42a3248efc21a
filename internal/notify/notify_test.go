package notify

import "testing"

func TestNewMail(t *testing.T) {
	title, message := NewMail("personal", []string{"hello"})
	if title != "New mail: personal" {
		t.Errorf("title = %q", title)
	}
	if message != "hello" {
		t.Errorf("message = %q", message)
	}

	_, message = NewMail("personal", []string{"one", "two", "three"})
	if message != "3 new messages, latest: three" {
		t.Errorf("message = %q", message)
	}
}
