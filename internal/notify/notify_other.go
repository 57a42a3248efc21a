//go:build !windows

package notify

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// send shells out to notify-send, the freedesktop notification tool.
func send(title, message string, timeout time.Duration) error {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return fmt.Errorf("notify-send not found: %w", err)
	}
	ms := int(timeout / time.Millisecond)
	cmd := exec.Command(path, "-a", "catfriend", "-t", strconv.Itoa(ms), title, message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %v: %s", err, out)
	}
	return nil
}
