package services

import (
	"bytes"
	"log"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown converter for message and post bodies. GFM gives us tables,
// strikethrough, task lists and autolinks. Raw HTML in the source text is
// escaped by goldmark's default renderer.
var markdownConverter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// RenderMarkdown converts markdown to HTML, returning the original text
// unchanged when conversion fails.
func RenderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}
