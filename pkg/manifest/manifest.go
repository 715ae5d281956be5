// Package manifest finds the fenced JSON file manifest in a programmer reply,
// parses it with progressively more forgiving tiers, and writes the files.
package manifest

import (
	"errors"
	"strings"
)

// DefaultFolder is used when the manifest names no usable folder.
const DefaultFolder = "output"

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// ErrNoManifest reports a reply without a parseable manifest. Callers treat it
// as zero files, not as a failure.
var ErrNoManifest = errors.New("no file manifest found")

// Tier names the parser that produced a manifest.
type Tier string

const (
	TierStrict   Tier = "strict"
	TierRepaired Tier = "repaired"
	TierSalvaged Tier = "salvaged"
)

// File is one generated file, its path relative to the manifest folder.
type File struct {
	Path    string
	Content string
}

// Manifest is the parsed file list.
type Manifest struct {
	FolderName string
	Files      []File
	Tier       Tier
}

// Parser is one extraction tier. It reports false when it cannot read block.
type Parser func(block string) (*Manifest, bool)

// Chain tries parsers in order; the first success wins.
type Chain []Parser

// DefaultChain is strict, then repaired, then salvaged.
func DefaultChain() Chain {
	return Chain{ParseStrict, ParseRepaired, ParseSalvaged}
}

// Parse runs the chain over block.
func (c Chain) Parse(block string) (*Manifest, bool) {
	for _, p := range c {
		if m, ok := p(block); ok {
			return m, true
		}
	}
	return nil, false
}

// FindBlock returns the trimmed text between the first ```json fence and the
// next ``` fence. A missing closing fence means there is no block.
func FindBlock(text string) (string, bool) {
	start := strings.Index(text, fenceOpen)
	if start < 0 {
		return "", false
	}
	body := text[start+len(fenceOpen):]
	end := strings.Index(body, fenceClose)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// Extract finds and parses the manifest in text with the default chain.
func Extract(text string) (*Manifest, error) {
	return DefaultChain().Extract(text)
}

// Extract finds the block in text and parses it with c.
func (c Chain) Extract(text string) (*Manifest, error) {
	block, ok := FindBlock(text)
	if !ok {
		return nil, ErrNoManifest
	}
	m, ok := c.Parse(block)
	if !ok {
		return nil, ErrNoManifest
	}
	return m, nil
}

func folderOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultFolder
	}
	return name
}
