package sleep

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zuckermanai/zuckerman-sub001/internal/syncer"
)

// Turn is one message of recent activity.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (t Turn) String() string { return t.Role + ": " + t.Content }

// ActivitySource returns every turn of a scope, oldest first. The list is
// append-only; the pipeline skips turns it already consolidated.
type ActivitySource interface {
	Recent(ctx context.Context, scopeID string) ([]Turn, error)
}

// TranscriptSource reads <Dir>/<scope>.jsonl transcripts.
type TranscriptSource struct {
	Dir string
}

func (s TranscriptSource) Recent(_ context.Context, scopeID string) ([]Turn, error) {
	if scopeID == "" || strings.ContainsAny(scopeID, `/\`) {
		return nil, errors.New("invalid scope id")
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, scopeID+".jsonl"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	text, _, err := syncer.TranscriptText(data)
	if err != nil {
		return nil, err
	}
	var turns []Turn
	for _, line := range strings.Split(text, "\n") {
		role, content, ok := strings.Cut(line, ": ")
		if !ok || content == "" {
			continue
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}
	return turns, nil
}

func joinTurns(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}
