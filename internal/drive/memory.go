package drive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codefionn/driveagent/internal/consts"
)

// MemoryFile is a file held by MemoryRepository.
type MemoryFile struct {
	FileSummary
	Parent  string
	Content string
}

// MemoryRepository is an in-process Repository. Search is a case-insensitive
// substring match over names and content.
type MemoryRepository struct {
	mu     sync.RWMutex
	files  map[string]MemoryFile
	budget int
}

func NewMemoryRepository(files ...MemoryFile) *MemoryRepository {
	r := &MemoryRepository{files: make(map[string]MemoryFile), budget: consts.ReadCharBudget}
	for _, f := range files {
		r.Put(f)
	}
	return r
}

// SetReadBudget changes the truncation limit used by Read.
func (r *MemoryRepository) SetReadBudget(chars int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget = chars
}

func (r *MemoryRepository) Put(f MemoryFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.ID] = f
}

func (r *MemoryRepository) Search(ctx context.Context, query string, max int) ([]FileSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	return r.collect(max, func(f MemoryFile) bool {
		if f.MimeType == MimeFolder {
			return false
		}
		return strings.Contains(strings.ToLower(f.Name), needle) ||
			strings.Contains(strings.ToLower(f.Content), needle)
	}), nil
}

func (r *MemoryRepository) List(ctx context.Context, folderID string, max int) ([]FileSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.collect(max, func(f MemoryFile) bool {
		return folderID == "" || f.Parent == folderID
	}), nil
}

func (r *MemoryRepository) Read(ctx context.Context, fileID string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.files[fileID]
	budget := r.budget
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if f.MimeType == MimeFolder {
		return nil, fmt.Errorf("%w: %s is a folder", ErrUnsupportedType, f.Name)
	}

	text, total, cut := Truncate(f.Content, budget)
	return &Document{FileSummary: f.FileSummary, Content: text, TotalChars: total, Truncated: cut}, nil
}

// collect returns matches newest first, ties broken by name.
func (r *MemoryRepository) collect(max int, match func(MemoryFile) bool) []FileSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FileSummary, 0)
	for _, f := range r.files {
		if match(f) {
			out = append(out, f.FileSummary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModifiedTime.Equal(out[j].ModifiedTime) {
			return out[i].ModifiedTime.After(out[j].ModifiedTime)
		}
		return out[i].Name < out[j].Name
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
