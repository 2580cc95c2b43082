package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// CommandSender runs an external notifier built by Build
type CommandSender struct {
	Build func(title, message string) *exec.Cmd
}

func (c CommandSender) Send(title, message string) error {
	return c.Build(title, message).Run()
}

func notifySend(title, message string) *exec.Cmd {
	return exec.Command("notify-send", "--app-name=fansync", title, message)
}

func osascript(title, message string) *exec.Cmd {
	return exec.Command("osascript", "-e",
		fmt.Sprintf("display notification %q with title %q", message, title))
}

func powershellToast(title, message string) *exec.Cmd {
	esc := func(s string) string { return strings.ReplaceAll(s, "'", "''") }
	script := strings.Join([]string{
		"[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null",
		"$t = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)",
		"$n = $t.GetElementsByTagName('text')",
		fmt.Sprintf("$n.Item(0).InnerText = '%s'", esc(title)),
		fmt.Sprintf("$n.Item(1).InnerText = '%s'", esc(message)),
		"[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('fansync').Show([Windows.UI.Notifications.ToastNotification]::new($t))",
	}, "; ")
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

// Notifier sends desktop notifications. A Notifier without a sender, or a
// nil Notifier, drops everything.
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks the notifier command for the running OS
func NewNotifier() *Notifier {
	builders := map[string]func(string, string) *exec.Cmd{
		"linux":   notifySend,
		"darwin":  osascript,
		"windows": powershellToast,
	}
	if b, ok := builders[runtime.GOOS]; ok {
		return &Notifier{sender: CommandSender{Build: b}}
	}
	return &Notifier{}
}

func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify returns the delivery error so callers can log it
func (n *Notifier) Notify(title, message string) error {
	if n == nil || n.sender == nil {
		return nil
	}
	return n.sender.Send(title, message)
}
