package curriculum

import (
	"cmp"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	keystoneDir       = "keystone"
	gradesDir         = "grades"
	chapterInfoFile   = "info.yaml"
	chapterResFile    = "resources.yaml"
	resourceTypesFile = "resource_types.yaml"
	subjectsFile      = "subjects.yaml"
	boardsFile        = "boards.yaml"
)

type chapterKey struct {
	grade, board, subject, chapter string
}

type subjectKey struct {
	grade, board, subject string
}

// chapterResources maps topic → subtopic → resource set.
type chapterResources = OrderedMap[OrderedMap[ResourceSet]]

type catalog struct {
	resourceTypes ResourceTypes
	subjects      OrderedMap[Entry]
	boards        []string
	chapters      map[chapterKey]Chapter
	resources     map[chapterKey]chapterResources
	chapterLists  map[subjectKey][]string
}

// Loader loads and caches the catalog from a directory of YAML files.
type Loader struct {
	rootDir string
	cat     *catalog
	mu      sync.RWMutex
}

// NewLoader creates a new catalog loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{rootDir: rootDir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Root returns the directory the catalog is loaded from.
func (l *Loader) Root() string {
	return l.rootDir
}

// Reload re-reads the whole catalog and swaps it in atomically. On error the
// previously loaded catalog stays in place.
func (l *Loader) Reload() error {
	cat, err := loadCatalog(l.rootDir)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	l.mu.Lock()
	l.cat = cat
	l.mu.Unlock()

	slog.Info("catalog loaded",
		"root", l.rootDir,
		"chapters", len(cat.chapters),
		"resource_types", cat.resourceTypes.Len(),
	)
	return nil
}

// ResourceTypes returns the resource-kind reference data.
func (l *Loader) ResourceTypes() ResourceTypes {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cat.resourceTypes
}

// Subjects returns the subject listing.
func (l *Loader) Subjects() OrderedMap[Entry] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cat.subjects
}

// Boards returns the lowercase board identifiers.
func (l *Loader) Boards() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.cat.boards)
}

// Grades returns every grade with at least one chapter and the boards offering it.
func (l *Loader) Grades() GradeList {
	l.mu.RLock()
	defer l.mu.RUnlock()

	boards := make(map[string][]string)
	for key := range l.cat.chapters {
		if !slices.Contains(boards[key.grade], key.board) {
			boards[key.grade] = append(boards[key.grade], key.board)
		}
	}
	list := GradeList{GradeBoards: boards}
	for grade, b := range boards {
		slices.Sort(b)
		list.Grades = append(list.Grades, grade)
	}
	slices.SortFunc(list.Grades, compareNumeric)
	return list
}

// Chapter returns the chapter info addressed by p.
func (l *Loader) Chapter(p Path) (Chapter, bool) {
	p = p.Normalize()
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.cat.chapters[chapterKey{p.Grade, p.Board, p.Subject, p.Chapter}]
	return c, ok
}

// ChapterList returns the chapters of a subject, numerically ordered.
func (l *Loader) ChapterList(p Path) (OrderedMap[Entry], bool) {
	p = p.Normalize()
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids, ok := l.cat.chapterLists[subjectKey{p.Grade, p.Board, p.Subject}]
	if !ok {
		return OrderedMap[Entry]{}, false
	}
	var list OrderedMap[Entry]
	for _, id := range ids {
		c := l.cat.chapters[chapterKey{p.Grade, p.Board, p.Subject, id}]
		list.Set(id, Entry{Name: c.Name})
	}
	return list, true
}

// Resources returns the resource set of the topic/subtopic addressed by p.
func (l *Loader) Resources(p Path) (ResourceSet, bool) {
	p = p.Normalize()
	l.mu.RLock()
	defer l.mu.RUnlock()

	byTopic, ok := l.cat.resources[chapterKey{p.Grade, p.Board, p.Subject, p.Chapter}]
	if !ok {
		return ResourceSet{}, false
	}
	bySubtopic, ok := byTopic.Get(p.Topic)
	if !ok {
		return ResourceSet{}, false
	}
	return bySubtopic.Get(p.Subtopic)
}

// VideoResources returns every resource in the catalog that embeds a video,
// once per id, ordered by id.
func (l *Loader) VideoResources() []Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byID := make(map[string]Resource)
	for _, byTopic := range l.cat.resources {
		byTopic.Each(func(_ string, bySubtopic OrderedMap[ResourceSet]) {
			bySubtopic.Each(func(_ string, set ResourceSet) {
				set.Each(func(_ string, list []Resource) {
					for _, r := range list {
						if r.ID != "" && r.VideoID() != "" {
							byID[r.ID] = r
						}
					}
				})
			})
		})
	}

	out := make([]Resource, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Resource) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func loadCatalog(root string) (*catalog, error) {
	cat := &catalog{
		chapters:     make(map[chapterKey]Chapter),
		resources:    make(map[chapterKey]chapterResources),
		chapterLists: make(map[subjectKey][]string),
	}

	keystone := filepath.Join(root, keystoneDir)
	if err := readYAML(filepath.Join(keystone, resourceTypesFile), &cat.resourceTypes); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("resource types: %w", err)
	}
	if err := readYAML(filepath.Join(keystone, subjectsFile), &cat.subjects); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	if err := readYAML(filepath.Join(keystone, boardsFile), &cat.boards); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("boards: %w", err)
	}
	for i, b := range cat.boards {
		cat.boards[i] = NormalizeBoard(b)
	}

	grades := filepath.Join(root, gradesDir)
	err := filepath.WalkDir(grades, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == grades {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(grades, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 5 {
			return nil
		}
		key := chapterKey{
			grade:   parts[0],
			board:   NormalizeBoard(parts[1]),
			subject: NormalizeSubject(parts[2]),
			chapter: parts[3],
		}
		if len(cat.boards) > 0 && !slices.Contains(cat.boards, key.board) {
			slog.Warn("skipping chapter with unknown board", "path", path, "board", key.board)
			return nil
		}

		switch parts[4] {
		case chapterInfoFile:
			return cat.loadChapter(path, key)
		case chapterResFile:
			return cat.loadResources(path, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ids := range cat.chapterLists {
		slices.SortFunc(ids, compareNumeric)
	}
	return cat, nil
}

func (c *catalog) loadChapter(path string, key chapterKey) error {
	var chapter Chapter
	if err := readYAML(path, &chapter); err != nil {
		if os.IsNotExist(err) {
			return err
		}
		slog.Warn("skipping invalid chapter YAML", "path", path, "error", err)
		return nil
	}
	if chapter.Name == "" {
		chapter.Name = key.chapter
	}

	c.chapters[key] = chapter
	sk := subjectKey{key.grade, key.board, key.subject}
	c.chapterLists[sk] = append(c.chapterLists[sk], key.chapter)
	return nil
}

func (c *catalog) loadResources(path string, key chapterKey) error {
	var res chapterResources
	if err := readYAML(path, &res); err != nil {
		if os.IsNotExist(err) {
			return err
		}
		slog.Warn("skipping invalid resources YAML", "path", path, "error", err)
		return nil
	}
	c.resources[key] = res
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// compareNumeric orders numeric identifiers by value and everything else lexically.
func compareNumeric(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
