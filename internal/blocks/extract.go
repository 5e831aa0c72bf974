// Package blocks extracts named file contents from LLM markdown responses.
//
// A file is a markdown heading naming a path, followed by one fenced code
// block:
//
//	## Models/User.swift
//	```swift
//	struct User {}
//	```
package blocks

import (
	"path"
	"regexp"
	"strings"
)

// FileBlock is a file path and its complete new content.
// Content "" means the file should be emptied.
type FileBlock struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

var (
	headingRe = regexp.MustCompile(`^ {0,3}#{1,6}\s+(.*?)\s*#*\s*$`)
	fenceRe   = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})(.*)$")
	extRe     = regexp.MustCompile(`[A-Za-z0-9_\-]\.[A-Za-z][A-Za-z0-9]*$`)
)

type scanState int

const (
	outside scanState = iota
	inside
)

// Extract returns every heading+fence pair in markdown, in order of
// appearance. Fences with no preceding path heading are skipped, and an
// unterminated fence at the end of input is dropped.
func Extract(markdown string) []FileBlock {
	out := make([]FileBlock, 0)

	var (
		state   = outside
		pending string // path named by the last heading, "" if none
		capture string // path of the block being read, "" when skipping
		fence   string // opening fence run, e.g. "```"
		lines   []string
	)

	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimRight(line, "\r")

		switch state {
		case outside:
			if m := headingRe.FindStringSubmatch(line); m != nil {
				pending = pathFromHeading(m[1])
				continue
			}
			if m := fenceRe.FindStringSubmatch(line); m != nil {
				if m[1][0] == '`' && strings.Contains(m[2], "`") {
					// Inline code, not a fence.
					continue
				}
				state = inside
				fence = m[1]
				capture = pending
				pending = ""
				lines = lines[:0]
			}

		case inside:
			if isClosingFence(line, fence) {
				if capture != "" {
					out = append(out, FileBlock{Path: capture, Content: joinContent(lines)})
				}
				state = outside
				capture = ""
				continue
			}
			lines = append(lines, line)
		}
	}

	return out
}

func isClosingFence(line, opener string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return false
	}
	trimmed = strings.TrimRight(trimmed, " \t")
	if len(trimmed) < len(opener) {
		return false
	}
	return strings.Trim(trimmed, opener[:1]) == ""
}

func joinContent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	content := strings.Join(lines, "\n")
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return strings.TrimRight(content, "\n") + "\n"
}

// pathFromHeading returns the first path-like token of a heading, or "".
func pathFromHeading(text string) string {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, "`*\"'()[],;")
		tok = strings.TrimSuffix(tok, ":")
		tok = strings.Trim(tok, "`*\"'")
		if p := cleanPath(tok); p != "" {
			return p
		}
	}
	return ""
}

// cleanPath normalizes a candidate path. A token counts as a path when its
// last segment has a file extension. Leading "/" and "./" are removed;
// ".." segments are preserved so the tree writer can reject them.
func cleanPath(tok string) string {
	tok = strings.ReplaceAll(tok, "\\", "/")
	if !extRe.MatchString(tok) {
		return ""
	}
	p := path.Clean(strings.TrimLeft(tok, "/"))
	if p == "." || p == "" {
		return ""
	}
	return p
}
