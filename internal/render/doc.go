// ABOUTME: Package doc for transcript rendering
// ABOUTME: Markdown-to-HTML export of conversation transcripts

// Package render turns a conversation transcript into a self-contained HTML
// document. Message content is treated as markdown and rendered with
// goldmark; the rest of the page is a small fixed template.
package render
