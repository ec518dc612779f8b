package skillet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/skilletloader/pkg/render"
	"github.com/newtron-network/skilletloader/pkg/util"
)

// MetaFileNames are the definition file names searched for in a skillet
// directory, in order.
var MetaFileNames = []string{".meta-cnc.yaml", ".meta-cnc.yml", "meta-cnc.yaml", "meta-cnc.yml"}

// FindMetaFile resolves path to a skillet definition file. path may name the
// file itself or a directory containing one of MetaFileNames.
func FindMetaFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("skillet path: %w", err)
	}
	if !info.IsDir() {
		if !strings.Contains(filepath.Base(path), "meta-cnc") {
			return "", fmt.Errorf("%s is not a meta-cnc file: %w", path, util.ErrNotFound)
		}
		return path, nil
	}
	for _, name := range MetaFileNames {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no meta-cnc file in %s: %w", path, util.ErrNotFound)
}

// Load reads, normalizes and validates the skillet at path. Snippet file
// contents, resolved relative to the definition, become the snippet element
// unless the definition already carries one.
func Load(path string, r *render.Renderer) (*Skillet, error) {
	metaFile, err := FindMetaFile(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(metaFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaFile, err)
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaFile, err)
	}

	def, warnings := Normalize(raw)
	log := util.WithSkillet(def.Name)
	for _, w := range warnings {
		log.Warn(w)
	}

	dir := filepath.Dir(metaFile)
	for _, sd := range def.Snippets {
		attachSnippetFile(dir, sd)
	}

	s, err := New(def, r)
	if err != nil {
		return nil, err
	}
	s.Dir = dir
	log.Debugf("Loaded %d snippets from %s", len(s.snippets), metaFile)
	return s, nil
}

// attachSnippetFile copies the contents of the snippet's file into its
// element field. A missing file leaves the definition untouched so that
// validation reports the absent element.
func attachSnippetFile(dir string, sd map[string]any) {
	if _, ok := sd["element"]; ok {
		return
	}
	file, _ := sd["file"].(string)
	if file == "" {
		return
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(dir, file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		util.WithField("file", file).Warnf("Snippet file unreadable: %v", err)
		return
	}
	sd["element"] = string(data)
}
