// Package markdown renders user-authored markdown (maintenance descriptions,
// lease notes) to HTML. Raw HTML in the source is dropped.
package markdown

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	instance goldmark.Markdown
	once     sync.Once
)

func get() goldmark.Markdown {
	once.Do(func() {
		instance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return instance
}

// Render converts markdown to an HTML fragment.
func Render(src string) (string, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := get().Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustRender is Render for callers that treat a conversion failure as
// "no HTML available".
func MustRender(src string) string {
	out, err := Render(src)
	if err != nil {
		return ""
	}
	return out
}
