//go:build windows

package notify

import (
	"time"

	"github.com/go-toast/toast"
)

// send raises a Windows toast notification.
func send(title, message string, timeout time.Duration) error {
	notification := toast.Notification{
		AppID:   "catfriend",
		Title:   title,
		Message: message,
		Audio:   toast.Mail,
	}
	// Toast durations are coarse; anything past the short default maps
	// to "long".
	if timeout > 7*time.Second {
		notification.Duration = "long"
	}
	return notification.Push()
}
