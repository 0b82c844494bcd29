package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/geofffranks/simpleyaml"
	"github.com/geofffranks/yaml"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/starkandwayne/goutils/ansi"
	"github.com/voxelbrain/goptions"

	"github.com/reclass-go/reclass/internal/config"
	"github.com/reclass-go/reclass/internal/storage"
	"github.com/reclass-go/reclass/log"
	"github.com/reclass-go/reclass/pkg/reclass"
)

// Version is the reclass-go release version, set at build time with
// -ldflags "-X main.Version=...".
var Version = "(development)"

// BSD sysexits (spec.md §6 "CLI").
const (
	exOK      = 0
	exUsage   = 64 // EX_USAGE: argument error
	exDataErr = 65 // EX_DATAERR: data-level failure
	exIOErr   = 74 // EX_IOERR: missing file
	exNoPerm  = 77 // EX_NOPERM: read-denied
	exConfig  = 78 // EX_CONFIG: configuration inconsistency
)

var printfStdOut = func(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

var exit = func(code int) {
	os.Exit(code)
}

func usage() {
	goptions.PrintHelp()
	exit(exUsage)
}

type options struct {
	Inventory bool   `goptions:"-i, --inventory, description='Render the fleet-wide inventory document'"`
	NodeInfo  string `goptions:"-n, --nodeinfo, description='Render the nodeinfo document for the named node'"`

	ConfigFile string `goptions:"--config, description='Path to a reclass-config.yaml/.toml file'"`

	Storage               string `goptions:"-s, --storage, description='Storage backend: filesystem, git, or mixed'"`
	BaseURI               string `goptions:"-b, --base-uri, description='Base URI storage paths resolve against'"`
	NodesURI              string `goptions:"-u, --nodes-uri, description='Nodes directory, relative to base-uri'"`
	ClassesURI            string `goptions:"-c, --classes-uri, description='Classes directory, relative to base-uri'"`
	IgnoreClassNotfound   bool   `goptions:"-z, --ignore-class-notfound, description='Tolerate missing classes'"`
	IgnoreClassNotfoundRx string `goptions:"-x, --ignore-class-notfound-regexp, description='Only tolerate missing classes matching this regexp'"`
	ComposeNodeName       bool   `goptions:"-a, --compose-node-name, description='Derive node names from their directory path'"`

	Output      string `goptions:"-o, --output, description='Output format: yaml or json'"`
	Pretty      bool   `goptions:"-y, --pretty, description='Colorize YAML output when stdout is a terminal'"`
	NoRefs      bool   `goptions:"-r, --no-refs, description='Disable YAML anchor/alias compaction in output'"`
	SingleError bool   `goptions:"-1, --single-error, description='Report only the first interpolation error'"`
	GroupedErr  bool   `goptions:"-0, --grouped-errors, description='Report all interpolation errors together'"`

	Debug   bool `goptions:"-D, --debug, description='Enable debug logging'"`
	Version bool `goptions:"-v, --version, description='Display version information'"`
	Help    bool `goptions:"-h, --help"`
}

func main() {
	var o options
	if err := goptions.Parse(&o); err != nil {
		usage()
		return
	}
	if o.Help {
		usage()
		return
	}
	if o.Version {
		printfStdOut("reclass-go %s\n", Version)
		exit(exOK)
		return
	}

	runID := uuid.New().String()
	log.SetRunID(runID)
	if o.Debug || envFlag("RECLASS_DEBUG") {
		log.SetLevel(log.LevelDebug)
	}
	ansi.Color(isatty.IsTerminal(os.Stdout.Fd()))

	switch {
	case !o.Inventory && o.NodeInfo == "":
		log.PrintfStdErr(ansi.Sprintf("@R{error:} exactly one of --inventory or --nodeinfo NAME is required\n"))
		exit(exUsage)
		return
	case o.Inventory && o.NodeInfo != "":
		log.PrintfStdErr(ansi.Sprintf("@R{error:} --inventory and --nodeinfo are mutually exclusive\n"))
		exit(exUsage)
		return
	}

	cfg, code := loadConfig(&o)
	if code != exOK {
		exit(code)
		return
	}

	backend, err := buildBackend(&cfg.Storage, cfg.Settings.ComposeNodeName)
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{error:} %s\n", err))
		exit(classifyStorageError(err))
		return
	}

	core := reclass.NewCore(backend, &cfg.Settings)
	timestamp := time.Now().Format(time.RFC3339)

	var doc map[string]interface{}
	if o.Inventory {
		inv, err := core.BuildInventory()
		if err != nil {
			log.PrintfStdErr(ansi.Sprintf("@R{error:} %s\n", err))
			exit(exDataErr)
			return
		}
		doc = reclass.BuildInventoryDocument(inv, timestamp)
	} else {
		result, err := core.CompileNode(o.NodeInfo, "")
		if err != nil {
			log.PrintfStdErr(ansi.Sprintf("@R{error:} %s\n", err))
			exit(exDataErr)
			return
		}
		doc = reclass.BuildNodeInfoDocument(result, timestamp)
	}

	out, err := renderDocument(doc, cfg.Output.Format, cfg.Output.Pretty)
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{error:} rendering output: %s\n", err))
		exit(exDataErr)
		return
	}
	printfStdOut("%s", out)
	exit(exOK)
}

func envFlag(name string) bool {
	v := os.Getenv(name)
	return v != "" && v != "0" && v != "false"
}

// loadConfig assembles the RuntimeConfig from (in ascending priority)
// documented defaults, an optional --config file, the environment, and
// the CLI flags actually passed.
func loadConfig(o *options) (*config.RuntimeConfig, int) {
	var cfg *config.RuntimeConfig
	if o.ConfigFile != "" {
		c, err := config.Load(o.ConfigFile)
		if err != nil {
			log.PrintfStdErr(ansi.Sprintf("@R{error:} %s\n", err))
			if os.IsNotExist(err) {
				return nil, exIOErr
			}
			return nil, exConfig
		}
		cfg = c
	} else {
		cfg = config.DefaultRuntimeConfig()
	}

	if err := config.NewLoader().LoadFromEnvironment(cfg); err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{error:} %s\n", err))
		return nil, exConfig
	}

	applyFlagOverrides(cfg, o)

	if err := config.Validate(cfg); err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{error:} %s\n", err))
		return nil, exConfig
	}
	return cfg, exOK
}

func applyFlagOverrides(cfg *config.RuntimeConfig, o *options) {
	if o.Storage != "" {
		cfg.Storage.Kind = o.Storage
	}
	if o.BaseURI != "" {
		cfg.Storage.BaseURI = o.BaseURI
	}
	if o.NodesURI != "" {
		cfg.Storage.NodesURI = o.NodesURI
	}
	if o.ClassesURI != "" {
		cfg.Storage.ClassesURI = o.ClassesURI
	}
	if o.IgnoreClassNotfound {
		cfg.Settings.IgnoreClassNotfound = true
	}
	if o.IgnoreClassNotfoundRx != "" {
		cfg.Settings.IgnoreClassNotfoundRegexp = o.IgnoreClassNotfoundRx
	}
	if o.ComposeNodeName {
		cfg.Settings.ComposeNodeName = true
	}
	if o.Output != "" {
		cfg.Output.Format = o.Output
	}
	if o.Pretty {
		cfg.Output.Pretty = true
	}
	if o.NoRefs {
		cfg.Output.NoRefs = true
	}
	if o.SingleError {
		cfg.Settings.GroupErrors = false
	}
	if o.GroupedErr {
		cfg.Settings.GroupErrors = true
	}
}

func buildBackend(sc *config.StorageConfig, composeNodeName bool) (*storage.MemcacheProxy, error) {
	var real storage.Backend
	var err error
	switch sc.Kind {
	case "", "filesystem":
		real, err = storage.NewFilesystemBackend(sc.BaseURI, sc.NodesURI, sc.ClassesURI, composeNodeName)
	case "git":
		cacheDir := sc.BaseURI
		if cacheDir == "" {
			cacheDir = ".reclass-git-cache"
		}
		real, err = storage.NewGitBackend(sc.GitRemote, sc.GitRef, cacheDir, sc.NodesURI, sc.ClassesURI, composeNodeName)
	case "mixed":
		real, err = buildMixedBackend(sc, composeNodeName)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", sc.Kind)
	}
	if err != nil {
		return nil, err
	}
	return storage.NewMemcacheProxy(real, sc.CacheNodes, sc.CacheClasses, sc.CacheNodelist), nil
}

// unusedSiblingDir names a fixed, practically-never-present subpath for
// the half of a FilesystemBackend/GitBackend we don't care about when
// that constructor is reused to build a nodes-only or classes-only
// sub-backend for "mixed" storage: NewFilesystemBackend always wants
// both a nodes and a classes URI and rejects them being equal or
// overlapping, but enumerating a directory that doesn't exist just
// yields zero entities, so this sub-tree is never actually read.
func unusedSiblingDir(kind string) string {
	return ".reclass-mixed-unused-" + kind
}

// buildClassesBackend builds the classes half of a "mixed" backend:
// git-backed when remote is set, filesystem-backed otherwise, always
// rooted at classesURI (spec.md §6; grounded on the original reclass's
// storage/mixed, which resolves each environment's classes storage
// independently of the nodes storage).
func buildClassesBackend(baseURI, classesURI, remote, ref string, composeNodeName bool) (storage.Backend, error) {
	if remote == "" {
		return storage.NewFilesystemBackend(baseURI, unusedSiblingDir("nodes"), classesURI, composeNodeName)
	}
	cacheDir := baseURI
	if cacheDir == "" {
		cacheDir = ".reclass-git-cache"
	}
	return storage.NewGitBackend(remote, ref, cacheDir, unusedSiblingDir("nodes"), classesURI, composeNodeName)
}

// buildMixedBackend assembles a storage.MixedBackend from a
// StorageConfig's nodes/default-classes/per-environment-classes
// coordinates (spec.md §5 supplemented features; grounded on the
// original reclass's storage/mixed/__init__.py).
func buildMixedBackend(sc *config.StorageConfig, composeNodeName bool) (storage.Backend, error) {
	nodes, err := storage.NewFilesystemBackend(sc.BaseURI, sc.NodesURI, unusedSiblingDir("classes"), composeNodeName)
	if err != nil {
		return nil, fmt.Errorf("mixed storage nodes backend: %w", err)
	}
	defaultClasses, err := buildClassesBackend(sc.BaseURI, sc.ClassesURI, sc.GitRemote, sc.GitRef, composeNodeName)
	if err != nil {
		return nil, fmt.Errorf("mixed storage default classes backend: %w", err)
	}
	var byEnv map[string]storage.Backend
	if len(sc.ClassesEnvOverrides) > 0 {
		byEnv = make(map[string]storage.Backend, len(sc.ClassesEnvOverrides))
		for env, override := range sc.ClassesEnvOverrides {
			b, err := buildClassesBackend(sc.BaseURI, sc.ClassesURI, override.GitRemote, override.GitRef, composeNodeName)
			if err != nil {
				return nil, fmt.Errorf("mixed storage classes override for environment %q: %w", env, err)
			}
			byEnv[env] = b
		}
	}
	return storage.NewMixedBackend(nodes, defaultClasses, byEnv), nil
}

func classifyStorageError(err error) int {
	if os.IsPermission(err) {
		return exNoPerm
	}
	if os.IsNotExist(err) {
		return exIOErr
	}
	return exConfig
}

// renderDocument marshals doc as YAML (via the geofffranks fork the
// teacher standardizes on) or, for JSON, round-trips it through
// simpleyaml the same way the teacher's own `json` subcommand does —
// decoding back through simpleyaml guarantees only JSON-safe types
// (no map[interface{}]interface{}) reach encoding/json.
func renderDocument(doc map[string]interface{}, format string, pretty bool) (string, error) {
	y, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	switch format {
	case "", "yaml":
		if pretty {
			return ansi.Sprintf("@G{%s}", string(y)), nil
		}
		return string(y), nil
	case "json":
		return jsonify(y)
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func jsonify(y []byte) (string, error) {
	parsed, err := simpleyaml.NewYaml(y)
	if err != nil {
		return "", err
	}
	m, err := parsed.Map()
	if err != nil {
		return "", fmt.Errorf("root of rendered document is not a mapping: %w", err)
	}
	plain, err := deinterfaceMap(m)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(plain, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// deinterfaceMap recursively converts a YAML-decoded
// map[interface{}]interface{} tree into map[string]interface{}, the
// shape encoding/json requires.
func deinterfaceMap(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, cv := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprintf("%v", k)
			}
			dv, err := deinterfaceMap(cv)
			if err != nil {
				return nil, err
			}
			out[ks] = dv
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, cv := range t {
			dv, err := deinterfaceMap(cv)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, cv := range t {
			dv, err := deinterfaceMap(cv)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	default:
		return v, nil
	}
}
