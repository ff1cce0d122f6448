package syncer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
)

type sourceFile struct {
	path   string
	source string
}

// discover lists the files of every enabled source, sorted by path.
func (s *Syncer) discover() ([]sourceFile, error) {
	var files []sourceFile

	if s.cfg.HasSource(config.SourceMemory) {
		if info, err := os.Stat(s.layout.MemoryFile()); err == nil && !info.IsDir() {
			files = append(files, sourceFile{path: s.layout.MemoryFile(), source: config.SourceMemory})
		}
		err := filepath.WalkDir(s.layout.DailyDir(), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
				files = append(files, sourceFile{path: path, source: config.SourceMemory})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if s.cfg.HasSource(config.SourceConversations) {
		matches, err := filepath.Glob(filepath.Join(s.layout.ConversationsDir(), "*.jsonl"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			files = append(files, sourceFile{path: m, source: config.SourceConversations})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

type transcriptLine struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// maxTranscriptLine bounds one JSONL line of a transcript.
const maxTranscriptLine = 16 * 1024 * 1024

// TranscriptText flattens a JSONL transcript into one "role: text" line per
// message and returns the text and the message count. Lines that are not
// messages are ignored; a line longer than the scanner allows is an error.
func TranscriptText(data []byte) (string, int, error) {
	var b strings.Builder
	messages := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), maxTranscriptLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var tl transcriptLine
		if err := json.Unmarshal(line, &tl); err != nil {
			continue
		}
		role, raw := tl.Role, tl.Content
		if tl.Message != nil {
			role, raw = tl.Message.Role, tl.Message.Content
		}
		text := contentText(raw)
		if role == "" || text == "" {
			continue
		}
		messages++
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(strings.Join(strings.Fields(text), " "))
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", 0, fmt.Errorf("read transcript after %d messages: %w", messages, err)
	}
	return b.String(), messages, nil
}

func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, bl := range blocks {
		if bl.Type == "text" && bl.Text != "" {
			parts = append(parts, bl.Text)
		}
	}
	return strings.Join(parts, " ")
}
