// Package report renders a finished session as Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/summarize"
)

// Markdown renders one section per record in capture order. sess may be
// nil when only the records are known.
func Markdown(sess *store.Session, snap session.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", snap.ID())
	if sess != nil {
		fmt.Fprintf(&b, "- Status: %s\n", sess.Status)
		fmt.Fprintf(&b, "- Started: %s\n", session.Stamp(sess.CreatedAt))
	}
	fmt.Fprintf(&b, "- Records: %d\n", snap.Len())

	if snap.Len() == 0 {
		b.WriteString("\nNo captures were recorded.\n")
		return b.String()
	}

	for _, rec := range snap.Records() {
		fmt.Fprintf(&b, "\n## %s\n\n", rec.Timestamp)
		if rec.ArtifactPath != "" {
			fmt.Fprintf(&b, "![capture %s](%s)\n\n", rec.Timestamp, rec.ArtifactPath)
		}
		for _, line := range strings.Split(strings.TrimSpace(summarize.Body(rec.Timestamp, rec.Summary)), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fmt.Fprintf(&b, "%s  \n", line)
		}
		fmt.Fprintf(&b, "\n`%s`\n", rec.Fingerprint)
	}
	return b.String()
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders the Markdown report as a standalone page. Artifact links
// are relative, so the page belongs next to the captures.
func HTML(sess *store.Session, snap session.Snapshot) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(sess, snap)), &body); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Session %s</title>\n", html.EscapeString(snap.ID()))
	b.WriteString("<style>body{font-family:sans-serif;max-width:52rem;margin:2rem auto}img{max-width:100%}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
