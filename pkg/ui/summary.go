package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"fansync/pkg/report"
)

// maxListedFailures caps the failures printed per account
const maxListedFailures = 10

// PrintPassSummary writes one block per account report
func PrintPassSummary(w io.Writer, reports []*report.Report) {
	for _, r := range reports {
		if r == nil {
			continue
		}
		status := Green("ok")
		if r.Aborted {
			status = Red("aborted")
		} else if len(r.Failures) > 0 {
			status = Yellow("partial")
		}

		fmt.Fprintf(w, "%s %s [%s]\n", Magenta("account"), r.Account, status)
		fmt.Fprintf(w, "  users %d  downloaded %d (%s)  skipped %d  failed %d  in %s\n",
			r.Users, r.Downloaded, FormatBytes(r.Bytes), r.Skipped, len(r.Failures),
			r.Duration().Round(time.Millisecond))

		for i, f := range r.Failures {
			if i == maxListedFailures {
				fmt.Fprintln(w, Dim(fmt.Sprintf("  ... %d more", len(r.Failures)-maxListedFailures)))
				break
			}
			fmt.Fprintf(w, "  %s %s\n", Red("✗"), describeFailure(f))
		}
	}
}

func describeFailure(f report.Failure) string {
	parts := []string{string(f.Scope)}
	if f.Username != "" {
		parts = append(parts, f.Username)
	} else if f.UserID != 0 {
		parts = append(parts, fmt.Sprintf("user %d", f.UserID))
	}
	if f.Collection != "" {
		parts = append(parts, f.Collection)
	}
	if f.MediaID != 0 {
		parts = append(parts, fmt.Sprintf("media %d", f.MediaID))
	}
	if f.Cursor != 0 {
		parts = append(parts, fmt.Sprintf("cursor %d", f.Cursor))
	}
	return strings.Join(parts, " / ") + ": " + f.Error
}

// NotifyPass sends one desktop notification when a pass downloaded anything
func NotifyPass(n *Notifier, reports []*report.Report) error {
	var downloaded, failed int
	var accounts []string
	for _, r := range reports {
		if r == nil || r.Downloaded == 0 {
			continue
		}
		downloaded += r.Downloaded
		failed += len(r.Failures)
		accounts = append(accounts, r.Account)
	}
	if downloaded == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d new items for %s", downloaded, strings.Join(accounts, ", "))
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return n.Notify("fansync", msg)
}

// FormatBytes renders n with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
