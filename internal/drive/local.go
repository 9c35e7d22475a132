package drive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/codefionn/driveagent/internal/htmlconv"
	"github.com/codefionn/driveagent/internal/logger"
)

// LocalRootID is the folder id of the loaded directory itself.
const LocalRootID = "root"

// maxLocalFileSize skips files too large to be useful as a single document.
const maxLocalFileSize = 10 << 20

var localMimeTypes = map[string]string{
	".txt":      MimePlainText,
	".text":     MimePlainText,
	".log":      MimePlainText,
	".md":       MimeMarkdown,
	".markdown": MimeMarkdown,
	".csv":      MimeCSV,
	".json":     MimeJSON,
	".html":     MimeHTML,
	".htm":      MimeHTML,
	".pdf":      MimePDF,
}

// LoadDirectory mirrors a local folder tree into a MemoryRepository so the
// agent can run without Google credentials. File ids are slash-separated
// paths relative to dir; top-level entries sit in LocalRootID. Hidden
// entries, paths matched by .gitignore files and unsupported types are
// skipped. HTML becomes markdown and PDFs their text layer.
func LoadDirectory(ctx context.Context, dir string) (*MemoryRepository, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	log := logger.Global().WithPrefix("drive")
	repo := NewMemoryRepository()
	rules := map[string]*ignoreRules{}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || isIgnored(rules, rel, true)) {
				return filepath.SkipDir
			}
			r, err := loadIgnoreRules(filepath.Join(p, ".gitignore"))
			if err != nil {
				return err
			}
			if r != nil {
				rules[rel] = r
			}
			if rel != "." {
				fi, err := d.Info()
				if err != nil {
					return err
				}
				repo.Put(MemoryFile{
					FileSummary: FileSummary{ID: rel, Name: d.Name(), MimeType: MimeFolder, ModifiedTime: fi.ModTime().UTC()},
					Parent:      localParent(rel),
				})
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() || isIgnored(rules, rel, false) {
			return nil
		}
		mime, ok := localMimeTypes[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxLocalFileSize {
			log.Warn("skipping %s: %d bytes", rel, fi.Size())
			return nil
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		content, err := localText(mime, raw)
		if err != nil {
			log.Warn("skipping %s: %v", rel, err)
			return nil
		}
		repo.Put(MemoryFile{
			FileSummary: FileSummary{ID: rel, Name: d.Name(), MimeType: mime, ModifiedTime: fi.ModTime().UTC(), Size: fi.Size()},
			Parent:      localParent(rel),
			Content:     content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func localParent(rel string) string {
	if dir := path.Dir(rel); dir != "." {
		return dir
	}
	return LocalRootID
}

// isIgnored consults the rules of every ancestor directory of rel.
func isIgnored(rules map[string]*ignoreRules, rel string, isDir bool) bool {
	dir := path.Dir(rel)
	for {
		if r, ok := rules[dir]; ok {
			sub := rel
			if dir != "." {
				sub = strings.TrimPrefix(rel, dir+"/")
			}
			if r.ignored(sub, isDir) {
				return true
			}
		}
		if dir == "." {
			return false
		}
		dir = path.Dir(dir)
	}
}

func localText(mime string, raw []byte) (string, error) {
	switch mime {
	case MimePDF:
		return PDFText(raw)
	case MimeHTML:
		md, _ := htmlconv.ConvertIfHTML(string(raw))
		return md, nil
	default:
		if strings.ContainsRune(string(raw[:min(len(raw), 512)]), 0) {
			return "", errors.New("binary content")
		}
		return string(raw), nil
	}
}
