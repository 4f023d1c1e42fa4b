package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=imgscraper", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier prints a message and optionally mirrors it to the desktop
type Notifier struct {
	sender NotificationSender
}

// NewNotifier creates a Notifier. Desktop delivery is used only when
// desktop is set and the platform has a sender.
func NewNotifier(desktop bool) *Notifier {
	if !desktop {
		return &Notifier{}
	}
	switch runtime.GOOS {
	case "linux":
		return &Notifier{sender: &LinuxNotificationSender{}}
	case "darwin":
		return &Notifier{sender: &MacOSNotificationSender{}}
	default:
		return &Notifier{}
	}
}

// NewNotifierWithSender creates a Notifier over an explicit sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}

// SendNotification prints an informational message
func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(writer(), "\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError prints an error message
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(writer(), "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess prints a success message
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(writer(), "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}
