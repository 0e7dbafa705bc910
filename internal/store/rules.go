package store

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"proxygen/internal/engine"
	"proxygen/internal/logger"

	"gopkg.in/yaml.v3"
)

const (
	GroupsFileName = "proxy-groups.yaml"
	RulesFileName  = "rules.yaml"
)

// RulesRepo reads templates, overrides and provider files from the rules dir.
// Missing or unreadable files read as empty.
type RulesRepo struct {
	dir string
}

func NewRulesRepo(dir string) (*RulesRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &RulesRepo{dir: dir}, nil
}

func (r *RulesRepo) Dir() string {
	return r.dir
}

// resolve maps a rules-dir relative path to a file path, refusing anything
// that would leave the dir.
func (r *RulesRepo) resolve(rel string) (string, bool) {
	clean := strings.TrimPrefix(strings.TrimSpace(rel), "./")
	if clean == "" || !filepath.IsLocal(clean) {
		return "", false
	}
	return filepath.Join(r.dir, clean), true
}

func (r *RulesRepo) readYAML(rel string, out interface{}) bool {
	path, ok := r.resolve(rel)
	if !ok {
		logger.Log.Warnf("Refusing configuration path outside rules dir: %s", rel)
		return false
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Log.Warnf("Configuration file not found: %s", path)
		return false
	}
	if err != nil {
		logger.Log.Errorf("Error loading configuration file %s: %v", path, err)
		return false
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		logger.Log.Errorf("Error loading configuration file %s: %v", path, err)
		return false
	}
	return true
}

func (r *RulesRepo) LoadGroups() []yaml.Node {
	var f engine.GroupsFile
	if !r.readYAML(GroupsFileName, &f) {
		return nil
	}
	return f.ProxyGroups
}

func (r *RulesRepo) LoadRules() engine.RuleTemplate {
	var t engine.RuleTemplate
	if !r.readYAML(RulesFileName, &t) {
		return engine.RuleTemplate{}
	}
	return t
}

// LoadOverride reads an override document; ".yaml" is appended when the name
// has no YAML extension. It returns nil when there is nothing to apply.
func (r *RulesRepo) LoadOverride(name string) *engine.Document {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") {
		name += ".yaml"
	}

	var doc engine.Document
	if !r.readYAML(name, &doc) || doc.Len() == 0 {
		return nil
	}
	return &doc
}

// ProviderLines returns the non-blank, non-comment lines of a provider file.
func (r *RulesRepo) ProviderLines(rel string) []string {
	path, ok := r.resolve(rel)
	if !ok {
		logger.Log.Warnf("Refusing rule provider path outside rules dir: %s", rel)
		return nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Log.Warnf("Rule provider file not found: %s", path)
		return nil
	}
	if err != nil {
		logger.Log.Errorf("Error loading rule provider file %s: %v", path, err)
		return nil
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		logger.Log.Errorf("Error loading rule provider file %s: %v", path, err)
		return nil
	}
	return lines
}
