// Package notify raises desktop notifications for new mail.
package notify

import (
	"fmt"
	"time"
)

// Send raises a desktop notification that stays up for roughly timeout
// on platforms that honour it.
func Send(title, message string, timeout time.Duration) error {
	return send(title, message, timeout)
}

// NewMail formats the notification for a batch of new messages on one
// account.
func NewMail(id string, subjects []string) (title, message string) {
	title = fmt.Sprintf("New mail: %s", id)
	if len(subjects) == 1 {
		return title, subjects[0]
	}
	return title, fmt.Sprintf("%d new messages, latest: %s", len(subjects), subjects[len(subjects)-1])
}
