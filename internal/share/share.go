// Package share builds the outbound social-share links shown in the page
// footer.
package share

import (
	"net/url"
	"strings"
)

// Text is the message attached to every share link.
const Text = "Memory Capsule — Find your pattern. Save memories, let AI show you what truly makes you happy."

// Links holds the share targets for one origin.
type Links struct {
	Twitter  string
	Facebook string
	LinkedIn string
	WhatsApp string
	// Copy is the URL placed on the clipboard by the copy action.
	Copy string
}

// Build derives the links from the page origin, e.g. "http://localhost:5000".
func Build(origin string) Links {
	page := strings.TrimRight(origin, "/") + "/"
	u := escape(page)
	return Links{
		Twitter:  "https://twitter.com/intent/tweet?url=" + u + "&text=" + escape(Text),
		Facebook: "https://www.facebook.com/sharer/sharer.php?u=" + u,
		LinkedIn: "https://www.linkedin.com/sharing/share-offsite/?url=" + u,
		WhatsApp: "https://wa.me/?text=" + escape(Text+" "+page),
		Copy:     page,
	}
}

var componentUnescape = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escape matches what browsers produce for a URI component: spaces become
// %20 and !'()* stay literal.
func escape(s string) string {
	return componentUnescape.Replace(url.QueryEscape(s))
}
