package manifest

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	folderNameRe    = regexp.MustCompile(`"folder_name"\s*:\s*"([^"]*)"`)
	// Content may contain escaped quotes; the path cannot contain a closing brace
	// between it and its content.
	fileEntryRe = regexp.MustCompile(`(?s)"(?:file_path|file_name)"\s*:\s*"([^"]+)"[^}]*?"file_content"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseStrict decodes block as JSON.
func ParseStrict(block string) (*Manifest, bool) {
	return decode(block, TierStrict)
}

// ParseRepaired drops trailing commas before } or ] and decodes again.
func ParseRepaired(block string) (*Manifest, bool) {
	return decode(trailingCommaRe.ReplaceAllString(block, "$1"), TierRepaired)
}

// ParseSalvaged pulls folder_name and file entries out with regular
// expressions when the block is not JSON at all. It fails only when neither a
// folder_name nor a file entry can be recovered.
func ParseSalvaged(block string) (*Manifest, bool) {
	m := &Manifest{FolderName: DefaultFolder, Tier: TierSalvaged}
	folder := folderNameRe.FindStringSubmatch(block)
	if folder != nil {
		m.FolderName = folderOrDefault(folder[1])
	}
	for _, match := range fileEntryRe.FindAllStringSubmatch(block, -1) {
		m.Files = append(m.Files, File{Path: match[1], Content: unescape(match[2])})
	}
	if folder == nil && len(m.Files) == 0 {
		return nil, false
	}
	return m, true
}

// document is the loose shape of a manifest. Fields are decoded as any so a
// wrong type in one entry does not fail the whole block.
type document struct {
	FolderName any   `json:"folder_name"`
	Files      []any `json:"files"`
}

func decode(block string, tier Tier) (*Manifest, bool) {
	var doc document
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		return nil, false
	}

	folder, _ := doc.FolderName.(string)
	m := &Manifest{FolderName: folderOrDefault(folder), Tier: tier}

	for _, raw := range doc.Files {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path, _ := entry["file_path"].(string)
		if path == "" {
			path, _ = entry["file_name"].(string)
		}
		content, ok := entry["file_content"].(string)
		if strings.TrimSpace(path) == "" || !ok {
			continue
		}
		m.Files = append(m.Files, File{Path: path, Content: content})
	}
	return m, true
}

// unescape resolves \n, \t, \" and \\ in one left-to-right pass. Other
// escapes are kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}
