package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/w-h-a/spinach/fault"
)

type Template struct {
	Id    string `json:"id"`
	Title string `json:"title"`
}

// Templates serves the markdown starter documents shipped in a directory.
type Templates struct {
	dir string
}

func (t *Templates) List() ([]Template, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Template{}, nil
		}
		return nil, err
	}

	templates := []Template{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".md")

		content, err := os.ReadFile(filepath.Join(t.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		templates = append(templates, Template{
			Id:    id,
			Title: title(string(content), id),
		})
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Id < templates[j].Id
	})

	return templates, nil
}

func (t *Templates) Read(id string) (string, error) {
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: template %s", fault.ErrNotFound, id)
	}

	content, err := os.ReadFile(filepath.Join(t.dir, id+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: template %s", fault.ErrNotFound, id)
		}
		return "", err
	}

	return string(content), nil
}

// title is the first non-empty line with markdown heading markers stripped.
func title(content string, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if len(line) > 0 {
			return line
		}
	}
	return fallback
}

func NewTemplates(dir string) *Templates {
	return &Templates{dir: dir}
}
