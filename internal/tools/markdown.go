// ABOUTME: Markdown to HTML rendering for post bodies.
// ABOUTME: Uses goldmark with GitHub-flavoured extensions.

package tools

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts markdown source to an HTML fragment.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", errors.Wrap(err, "rendering markdown")
	}
	return buf.String(), nil
}
