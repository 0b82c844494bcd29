package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reclass-go/reclass/pkg/reclass"
)

var yamlExtensions = []string{".yml", ".yaml"}

// FilesystemBackend implements Backend by reading class/node YAML
// documents from two directory trees (spec.md §6 "Input file format";
// grounded on the original reclass.storage.yaml_fs backend).
type FilesystemBackend struct {
	name      string
	nodesURI  string
	classesURI string
	nodeNames   map[string]string // name -> path
	classNames  map[string]string // name -> path
}

// NewFilesystemBackend enumerates nodesURI and classesURI up front,
// mangling each file's directory+basename into its entity name per
// composeNodeName (spec.md §6 "-a compose-node-name").
func NewFilesystemBackend(baseURI, nodesURI, classesURI string, composeNodeName bool) (*FilesystemBackend, error) {
	if baseURI == "" {
		baseURI, _ = os.Getwd()
	}
	if nodesURI == "" {
		nodesURI = "nodes"
	}
	if classesURI == "" {
		classesURI = "classes"
	}
	n, err := resolvePath(baseURI, nodesURI)
	if err != nil {
		return nil, err
	}
	c, err := resolvePath(baseURI, classesURI)
	if err != nil {
		return nil, err
	}
	if n == c {
		return nil, &DuplicateURIError{NodesURI: n, ClassesURI: c}
	}
	if strings.HasPrefix(n, c+string(os.PathSeparator)) || strings.HasPrefix(c, n+string(os.PathSeparator)) {
		return nil, &UriOverlapError{NodesURI: n, ClassesURI: c}
	}

	nodeMangler := NameMangler(PlainNodeNameMangler)
	if composeNodeName {
		nodeMangler = ComposedNodeNameMangler
	}

	fb := &FilesystemBackend{name: "filesystem", nodesURI: n, classesURI: c}
	fb.nodeNames, err = enumerateTree(n, nodeMangler)
	if err != nil {
		return nil, err
	}
	fb.classNames, err = enumerateTree(c, ClassNameMangler)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

func resolvePath(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel), nil
	}
	abs, err := filepath.Abs(filepath.Join(base, rel))
	if err != nil {
		return "", fmt.Errorf("resolving path %s under %s: %w", rel, base, err)
	}
	return abs, nil
}

func hasYAMLExt(name string) bool {
	for _, ext := range yamlExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// enumerateTree walks basedir, mangling every YAML file's
// (relative-directory, basename) into an entity name (spec.md §6;
// duplicate names are a configuration error).
func enumerateTree(basedir string, mangle NameMangler) (map[string]string, error) {
	out := map[string]string{}
	if _, err := os.Stat(basedir); os.IsNotExist(err) {
		return out, nil
	}
	err := filepath.Walk(basedir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !hasYAMLExt(info.Name()) {
			return nil
		}
		base := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		relDir, err := filepath.Rel(basedir, filepath.Dir(path))
		if err != nil {
			return err
		}
		_, name := mangle(relDir, base)
		if existing, ok := out[name]; ok {
			return &DuplicateNodeNameError{StorageName: "filesystem", EntityName: name, FirstURI: existing, SecondURI: path}
		}
		out[name] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FilesystemBackend) Name() string { return f.name }

func (f *FilesystemBackend) loadEntity(kind, name, path string, settings *reclass.Settings) (*reclass.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s %q at %s: %w", kind, name, path, err)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s %q at %s: %w", kind, name, path, err)
	}
	doc, err := reclass.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q at %s: %w", kind, name, path, err)
	}
	return reclass.EntityFromDocument(name, path, doc, settings)
}

func (f *FilesystemBackend) GetNode(name string, settings *reclass.Settings) (*reclass.Entity, error) {
	path, ok := f.nodeNames[name]
	if !ok {
		return nil, &NotFoundError{StorageName: f.Name(), Kind: "node", EntityName: name, URI: f.nodesURI}
	}
	return f.loadEntity("node", name, path, settings)
}

func (f *FilesystemBackend) GetClass(name, environment string, settings *reclass.Settings) (*reclass.Entity, error) {
	path, ok := f.classNames[name]
	if !ok {
		return nil, &NotFoundError{StorageName: f.Name(), Kind: "class", EntityName: name, URI: f.classesURI}
	}
	e, err := f.loadEntity("class", name, path, settings)
	if err != nil {
		return nil, err
	}
	if e.Environment == "" {
		e.Environment = environment
	}
	return e, nil
}

func (f *FilesystemBackend) EnumerateNodes() ([]string, error) {
	names := make([]string, 0, len(f.nodeNames))
	for n := range f.nodeNames {
		names = append(names, n)
	}
	return names, nil
}
