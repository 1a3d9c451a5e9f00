package vault

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vaultclaw/vaultclaw/pkg/logger"
)

const trashDir = ".trash"

// FS is a Store rooted at a directory on disk. Mutating calls on the same
// normalized path serialize through a per-path mutex so concurrent JSON-RPC
// tool calls against one note do not interleave.
type FS struct {
	root      string
	extension string

	activeMu sync.RWMutex
	active   string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewFS(root, extension string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", abs)
	}
	if extension == "" {
		extension = ".md"
	}
	return &FS{
		root:      abs,
		extension: extension,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (f *FS) Root() string      { return f.root }
func (f *FS) Extension() string { return f.extension }

// NormalizePath appends the note extension to a bare name and cleans the
// path. Folder paths pass through untouched apart from cleaning.
func (f *FS) NormalizePath(p string) string {
	p = cleanRel(p)
	if p == "" || p == "." {
		return p
	}
	if path.Ext(p) == "" {
		return p + f.extension
	}
	return p
}

// resolve maps a vault-relative path to an absolute one, rejecting escapes
// above the vault root.
func (f *FS) resolve(p string) (string, error) {
	rel := cleanRel(p)
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside the vault", p)
	}
	return filepath.Join(f.root, filepath.FromSlash(rel)), nil
}

func cleanRel(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	return path.Clean(p)
}

func (f *FS) pathLock(p string) *sync.Mutex {
	f.locksMu.Lock()
	defer f.locksMu.Unlock()
	mu, ok := f.locks[p]
	if !ok {
		mu = &sync.Mutex{}
		f.locks[p] = mu
	}
	return mu
}

// lookup tries the path as given, then with the note extension appended,
// then with it stripped. First hit wins.
func (f *FS) lookup(p string) (string, error) {
	candidates := []string{cleanRel(p)}
	if path.Ext(p) == "" {
		candidates = append(candidates, cleanRel(p)+f.extension)
	} else if strings.EqualFold(path.Ext(p), f.extension) {
		candidates = append(candidates, strings.TrimSuffix(cleanRel(p), path.Ext(p)))
	}
	for _, c := range candidates {
		abs, err := f.resolve(c)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, p)
}

func (f *FS) Read(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := f.lookup(f.NormalizePath(p))
	if err != nil {
		// Fall back to the raw form before giving up.
		if abs, err = f.lookup(p); err != nil {
			return "", err
		}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

func (f *FS) Create(ctx context.Context, p, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := f.NormalizePath(p)
	mu := f.pathLock(rel)
	mu.Lock()
	defer mu.Unlock()

	abs, err := f.resolve(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, rel)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create parent folders for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	return nil
}

func (f *FS) Modify(ctx context.Context, p, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := f.NormalizePath(p)
	mu := f.pathLock(rel)
	mu.Lock()
	defer mu.Unlock()

	abs, err := f.lookup(rel)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("modify %s: %w", rel, err)
	}
	return nil
}

func (f *FS) Rename(ctx context.Context, p, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := cleanRel(p)
	mu := f.pathLock(f.NormalizePath(p))
	mu.Lock()
	defer mu.Unlock()

	absOld, err := f.lookup(rel)
	if err != nil {
		return err
	}
	absNew, err := f.resolve(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absNew); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, newPath)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0755); err != nil {
		return fmt.Errorf("create parent folders for %s: %w", newPath, err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", rel, newPath, err)
	}
	return nil
}

// Trash moves the file or folder into .trash/ inside the vault instead of
// unlinking it. A timestamp suffix avoids collisions with earlier trashings.
func (f *FS) Trash(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := cleanRel(p)
	mu := f.pathLock(f.NormalizePath(p))
	mu.Lock()
	defer mu.Unlock()

	abs, err := f.lookup(rel)
	if err != nil {
		return err
	}
	target := filepath.Join(f.root, trashDir, filepath.Base(abs))
	if _, err := os.Stat(target); err == nil {
		target = fmt.Sprintf("%s.%d", target, time.Now().UnixNano())
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create trash folder: %w", err)
	}
	if err := os.Rename(abs, target); err != nil {
		return fmt.Errorf("trash %s: %w", rel, err)
	}
	return nil
}

func (f *FS) CreateFolder(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.resolve(p)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, cleanRel(p))
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create folder %s: %w", p, err)
	}
	return nil
}

func (f *FS) List(ctx context.Context, folder string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.resolve(folder)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cleanRel(folder))
		}
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}

	rel := cleanRel(folder)
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := name
		if rel != "" && rel != "." {
			p = rel + "/" + name
		}
		entries = append(entries, Entry{Name: name, Path: p, Folder: d.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Folder != entries[j].Folder {
			return entries[i].Folder
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func (f *FS) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := f.lookup(p); err == nil {
		return true, nil
	}
	return false, nil
}

func (f *FS) ActiveDocument() string {
	f.activeMu.RLock()
	defer f.activeMu.RUnlock()
	return f.active
}

func (f *FS) SetActiveDocument(p string) {
	f.activeMu.Lock()
	defer f.activeMu.Unlock()
	f.active = cleanRel(p)
}

// Backlinks walks the vault for notes that reference the target, either as a
// [[wiki link]] (with or without extension, optionally aliased) or as a plain
// path mention.
func (f *FS) Backlinks(ctx context.Context, p string) ([]string, error) {
	rel := f.NormalizePath(p)
	base := strings.TrimSuffix(path.Base(rel), path.Ext(rel))

	wikiPattern, err := regexp.Compile(`(?i)\[\[` + regexp.QuoteMeta(base) + `(\.[a-z0-9]+)?(\|[^\]]*)?\]\]`)
	if err != nil {
		return nil, fmt.Errorf("compile backlink pattern: %w", err)
	}

	var out []string
	err = filepath.WalkDir(f.root, func(abs string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && abs != f.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(path.Ext(name), f.extension) {
			return nil
		}
		srcRel, relErr := filepath.Rel(f.root, abs)
		if relErr != nil {
			return relErr
		}
		srcRel = filepath.ToSlash(srcRel)
		if srcRel == rel {
			return nil
		}
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			logger.WarnCF("vault", "Backlink scan skipped unreadable note", map[string]interface{}{
				"path":  srcRel,
				"error": readErr.Error(),
			})
			return nil
		}
		text := string(data)
		if wikiPattern.MatchString(text) || strings.Contains(text, rel) {
			out = append(out, srcRel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
