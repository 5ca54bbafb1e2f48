package curriculum_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

func TestLoader_LoadChapter(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	chapter, found := loader.Chapter(curriculum.Path{Grade: "9", Board: "CBSE", Subject: "math", Chapter: "3"})
	if !found {
		t.Fatal("Chapter(9/CBSE/math/3) not found")
	}
	if chapter.Name != "Polynomials" {
		t.Errorf("Chapter.Name = %q, want Polynomials", chapter.Name)
	}

	var keys []string
	var names []string
	for _, n := range chapter.TopicNodes() {
		keys = append(keys, n.Key)
		names = append(names, n.Name)
	}
	if want := []string{"main", "t1", "summary"}; !slices.Equal(keys, want) {
		t.Errorf("topic keys = %v, want %v", keys, want)
	}
	if want := []string{"Introduction", "Zeroes", "Summary"}; !slices.Equal(names, want) {
		t.Errorf("topic names = %v, want %v", names, want)
	}
}

func TestLoader_SubtopicOrder(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	chapter, _ := loader.Chapter(curriculum.Path{Grade: "9", Board: "cbse", Subject: "math", Chapter: "3"})
	topic, found := chapter.Topic("t1")
	if !found {
		t.Fatal("Topic(t1) not found")
	}

	var keys []string
	for _, n := range topic.SubtopicNodes() {
		keys = append(keys, n.Key)
	}
	if want := []string{"s2", "s1"}; !slices.Equal(keys, want) {
		t.Errorf("subtopic keys = %v, want declaration order %v", keys, want)
	}
}

func TestLoader_InheritsChapterName(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	chapter, _ := loader.Chapter(curriculum.Path{Grade: "9", Board: "cbse", Subject: "math", Chapter: "4"})
	topic, found := chapter.Topic("t1")
	if !found {
		t.Fatal("Topic(t1) not found")
	}
	if topic.Name != "Linear Equations" {
		t.Errorf("Name = %q, want chapter name for $name", topic.Name)
	}
}

func TestLoader_Resources(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	set, found := loader.Resources(curriculum.Path{
		Grade: "9", Board: "cbse", Subject: "math", Chapter: "3",
		Topic: "t1", Subtopic: "s1",
	})
	if !found {
		t.Fatal("Resources(t1, s1) not found")
	}
	videos, ok := set.Get("vid")
	if !ok || len(videos) != 1 {
		t.Fatalf("vid resources = %v, want 1", videos)
	}
	if videos[0].VideoID() != "abc123" {
		t.Errorf("VideoID() = %q, want abc123", videos[0].VideoID())
	}
}

func TestLoader_ResourceTypesOrder(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if want := []string{"vid", "lab", "doc"}; !slices.Equal(loader.ResourceTypes().Keys(), want) {
		t.Errorf("ResourceTypes keys = %v, want %v", loader.ResourceTypes().Keys(), want)
	}
}

func TestLoader_ChapterListNumericOrder(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	list, found := loader.ChapterList(curriculum.Path{Grade: "9", Board: "cbse", Subject: "math"})
	if !found {
		t.Fatal("ChapterList not found")
	}
	if want := []string{"3", "4", "10"}; !slices.Equal(list.Keys(), want) {
		t.Errorf("chapter ids = %v, want %v", list.Keys(), want)
	}
}

func TestLoader_SkipsUnknownBoard(t *testing.T) {
	dir := setupTestCatalog(t)
	writeFile(t, filepath.Join(dir, "grades", "9", "icse", "math", "1", "info.yaml"), "name: Sets\n")

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.Chapter(curriculum.Path{Grade: "9", Board: "icse", Subject: "math", Chapter: "1"}); found {
		t.Error("chapter under a board missing from boards.yaml should be skipped")
	}
}

func TestLoader_SkipsInvalidYAML(t *testing.T) {
	dir := setupTestCatalog(t)
	writeFile(t, filepath.Join(dir, "grades", "9", "cbse", "math", "11", "info.yaml"), "topics: [not, a, mapping")

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.Chapter(curriculum.Path{Grade: "9", Board: "cbse", Subject: "math", Chapter: "11"}); found {
		t.Error("invalid chapter YAML should be skipped")
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if loader.ResourceTypes().Len() != 0 {
		t.Errorf("ResourceTypes().Len() = %d, want 0 for empty dir", loader.ResourceTypes().Len())
	}
	if len(loader.Grades().Grades) != 0 {
		t.Errorf("Grades() = %v, want none", loader.Grades().Grades)
	}
}

func TestLoader_Reload(t *testing.T) {
	dir := setupTestCatalog(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "grades", "10", "cbse", "math", "1", "info.yaml"), "name: Real Numbers\n")
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	grades := loader.Grades()
	if want := []string{"9", "10"}; !slices.Equal(grades.Grades, want) {
		t.Errorf("Grades = %v, want %v", grades.Grades, want)
	}
}

func TestLoader_SubjectCaseInsensitive(t *testing.T) {
	dir := setupTestCatalog(t)
	writeFile(t, filepath.Join(dir, "grades", "9", "cbse", "Science", "1", "info.yaml"), "name: Matter\n")

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	tests := []struct {
		name    string
		subject string
		chapter string
	}{
		{"upper request, lower dir", "Math", "3"},
		{"padded request", " MATH ", "3"},
		{"lower request, mixed dir", "science", "1"},
		{"mixed request, mixed dir", "Science", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := curriculum.Path{Grade: "9", Board: "CBSE", Subject: tt.subject, Chapter: tt.chapter}
			if _, found := loader.Chapter(p); !found {
				t.Errorf("Chapter(%q) not found", tt.subject)
			}
			if _, found := loader.ChapterList(p); !found {
				t.Errorf("ChapterList(%q) not found", tt.subject)
			}
		})
	}
}

func TestLoader_VideoResources(t *testing.T) {
	dir := setupTestCatalog(t)
	writeFile(t, filepath.Join(dir, "grades", "9", "cbse", "math", "4", "resources.yaml"), `
main:
  main:
    vid:
      - id: r0
        title: Intro
        metadata: {video_id: xyz, author: Ms. Rao}
      - id: r1
        title: Finding zeroes again
        metadata: {video_id: abc123}
    doc:
      - id: d1
        title: Worksheet
        metadata: {link: "https://example.com/w"}
`)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	var ids []string
	for _, r := range loader.VideoResources() {
		ids = append(ids, r.ID)
		if r.ID == "r0" && r.Author() != "Ms. Rao" {
			t.Errorf("r0 author = %q, want Ms. Rao", r.Author())
		}
	}
	if want := []string{"r0", "r1"}; !slices.Equal(ids, want) {
		t.Errorf("video resources = %v, want %v", ids, want)
	}
}

func setupTestCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "keystone", "resource_types.yaml"), `
vid: {label: Videos, kind: video}
lab: {label: Labs, kind: lab}
doc: {label: Notes, kind: document}
`)
	writeFile(t, filepath.Join(dir, "keystone", "boards.yaml"), "- CBSE\n")
	writeFile(t, filepath.Join(dir, "keystone", "subjects.yaml"), "math: {name: Mathematics}\n")

	chapter := filepath.Join(dir, "grades", "9", "cbse", "math", "3")
	writeFile(t, filepath.Join(chapter, "info.yaml"), `
name: Polynomials
topics:
  main:
    name: ignored
  t1:
    name: Zeroes
    subtopics:
      s2: {name: Second}
      s1: {name: First}
  summary:
    name: ignored
`)
	writeFile(t, filepath.Join(chapter, "resources.yaml"), `
t1:
  s1:
    vid:
      - id: r1
        title: Finding zeroes
        kind: vid
        metadata: {video_id: abc123}
`)
	writeFile(t, filepath.Join(dir, "grades", "9", "cbse", "math", "4", "info.yaml"), `
name: Linear Equations
topics:
  t1: {name: $name}
`)
	writeFile(t, filepath.Join(dir, "grades", "9", "cbse", "math", "10", "info.yaml"), "name: Statistics\n")

	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
