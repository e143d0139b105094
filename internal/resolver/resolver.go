// Package resolver implements the C9 module resolver and cache:
// resolve_module(import_path, load_context) -> ResolvedModule | Error,
// backed by a dependency graph with forward/reverse edges, recursive
// invalidation, topological sort, and two-color-DFS cycle detection.
//
// Grounded on internal/module/loader.go's Loader (search paths, load
// stack for cycle detection, parse-then-cache flow) and
// internal/module/resolver.go's path-to-file-candidate mapping, adapted
// to route every step through C4 (modpath), C5 (integrity), and C3
// (resource) as spec.md §4.9 requires.
package resolver

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dkessler/corelang/internal/audit"
	"github.com/dkessler/corelang/internal/diag"
	"github.com/dkessler/corelang/internal/integrity"
	"github.com/dkessler/corelang/internal/modpath"
	"github.com/dkessler/corelang/internal/resource"
)

// candidateSuffixes is the file-map rule of spec.md §4.9: "a.b.c" resolves
// to one of these, tried in order.
var candidateSuffixes = []string{
	".script",
	"/index.script",
	"/mod.script",
}

// ResolvedModule is the successful outcome of Resolve.
type ResolvedModule struct {
	ModulePath   string
	FilePath     string
	Content      []byte
	ContentHash  string
	MTime        time.Time
	TrustLevel   integrity.TrustLevel
	Dependencies []string
}

// LoadContext carries the per-resolution state spec.md §4.9 threads
// through each step: the chain of module paths already being loaded (for
// cycle detection) and an optional extractor for a module's own import
// list.
type LoadContext struct {
	Chain            []string
	RequireTrust     integrity.TrustLevel
	ExtractDependencies func(content []byte) []string
}

func (lc LoadContext) visited(path string) bool {
	for _, p := range lc.Chain {
		if p == path {
			return true
		}
	}
	return false
}

type cacheEntry struct {
	module  ResolvedModule
	valid   bool
}

// graphNode tracks one module's forward and reverse dependency edges.
type graphNode struct {
	forward map[string]bool
	reverse map[string]bool
}

// Resolver is the C9 component.
type Resolver struct {
	projectRoots  []string
	globalRoots   []string
	validators    map[string]*modpath.Validator // one per search root, same MaxDepth/MaxSegment/Extension
	pathConfig    modpath.Config                // template; ProjectRoot is overridden per root
	verifier      *integrity.Verifier
	monitor       *resource.Monitor
	log           *audit.Logger
	maxModuleSize int64

	mu    sync.Mutex
	cache map[string]*cacheEntry
	graph map[string]*graphNode
}

// New constructs a Resolver. maxModuleSize of 0 means unlimited. pathConfig
// supplies the shared MaxDepth/MaxSegment/Extension used to build one C4
// validator per search root (each root is its own canonicalization
// boundary, per spec.md §4.4).
func New(projectRoots, globalRoots []string, pathConfig modpath.Config, verifier *integrity.Verifier, monitor *resource.Monitor, log *audit.Logger, maxModuleSize int64) *Resolver {
	r := &Resolver{
		projectRoots:  projectRoots,
		globalRoots:   globalRoots,
		pathConfig:    pathConfig,
		validators:    make(map[string]*modpath.Validator),
		verifier:      verifier,
		monitor:       monitor,
		log:           log,
		maxModuleSize: maxModuleSize,
		cache:         make(map[string]*cacheEntry),
		graph:         make(map[string]*graphNode),
	}
	for _, root := range append(append([]string{}, projectRoots...), globalRoots...) {
		cfg := pathConfig
		cfg.ProjectRoot = root
		r.validators[root] = modpath.New(cfg)
	}
	return r
}

func (r *Resolver) audit(severity audit.Severity, modulePath, description string, cause error) {
	if r.log == nil {
		return
	}
	ctx := audit.Context{Operation: "resolve_module", Path: modulePath}
	if cause != nil {
		ctx.Error = cause.Error()
	}
	_ = r.log.Log(audit.Event{
		Timestamp:   time.Now(),
		Severity:    severity,
		Category:    "module_resolution",
		Module:      modulePath,
		Description: description,
		Context:     ctx,
	})
}

func (r *Resolver) fail(modulePath, description string, cause error) (ResolvedModule, error) {
	r.audit(audit.Error, modulePath, description, cause)
	return ResolvedModule{}, cause
}

// Resolve implements the C9 contract, covering the seven steps of
// spec.md §4.9; the circular-import check (step 3) runs first.
func (r *Resolver) Resolve(importPath string, lc LoadContext) (ResolvedModule, error) {
	if err := r.monitor.CheckPhaseTimeout(time.Now()); err != nil {
		return r.fail(importPath, "phase timeout before resolution began", err)
	}

	// Step 3 first at the dotted-path level: circular import.
	if lc.visited(importPath) {
		return r.fail(importPath, "circular import detected", circularImportError(importPath, lc.Chain))
	}

	// Step 1: C4-validate, one candidate suffix at a time, against every
	// root.
	relPath := strings.ReplaceAll(importPath, ".", "/")
	filePath, root, err := r.locate(relPath)
	if err != nil {
		return r.fail(importPath, "module not found in any search root", err)
	}

	// Step 6 (recorded early so every step below is counted once per call).
	if err := r.monitor.CheckIteration("module_load"); err != nil {
		return r.fail(importPath, "module load budget exhausted", err)
	}

	r.mu.Lock()
	if entry, ok := r.cache[importPath]; ok && entry.valid {
		r.mu.Unlock()
		return entry.module, nil
	}
	r.mu.Unlock()

	// Step 5: read with size cap.
	info, err := os.Stat(filePath)
	if err != nil {
		return r.fail(importPath, "failed to stat module file", err)
	}
	if r.maxModuleSize > 0 && info.Size() > r.maxModuleSize {
		return r.fail(importPath, "module exceeds max_module_size",
			diag.New(diag.KindResourceExhausted, diag.MOD003, fmt.Sprintf("module %q is %d bytes, exceeds max_module_size=%d", importPath, info.Size(), r.maxModuleSize)).WithModule(importPath))
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return r.fail(importPath, "failed to read module file", err)
	}

	// Step 4: C5-verify integrity.
	result, err := r.verifier.VerifyModule(importPath, filePath, content, info.ModTime())
	if err != nil {
		return r.fail(importPath, "integrity verification failed", err)
	}
	if lc.RequireTrust > 0 && result.TrustLevel < lc.RequireTrust {
		return r.fail(importPath, "module trust level below required minimum",
			diag.New(diag.KindPermissionDenied, diag.SEC005,
				fmt.Sprintf("module %q trust level %s below required %s", importPath, result.TrustLevel, lc.RequireTrust)).WithModule(importPath))
	}

	var deps []string
	if lc.ExtractDependencies != nil {
		deps = lc.ExtractDependencies(content)
	}

	resolved := ResolvedModule{
		ModulePath:   importPath,
		FilePath:     filePath,
		Content:      content,
		ContentHash:  result.Checksum,
		MTime:        info.ModTime(),
		TrustLevel:   result.TrustLevel,
		Dependencies: deps,
	}

	// Step 7: visited set / cache, plus dependency graph edges.
	r.mu.Lock()
	r.cache[importPath] = &cacheEntry{module: resolved, valid: true}
	r.linkGraphLocked(importPath, deps)
	r.mu.Unlock()

	r.audit(audit.Info, importPath, "module resolved from "+root, nil)
	return resolved, nil
}

// locate tries each search root (projects first, then globals) against
// each candidate file-map suffix, validating the resulting relative path
// through C4 before checking existence.
func (r *Resolver) locate(relPath string) (filePath, root string, err error) {
	var lastErr error
	for _, base := range append(append([]string{}, r.projectRoots...), r.globalRoots...) {
		v, ok := r.validators[base]
		if !ok {
			continue
		}
		for _, suffix := range candidateSuffixes {
			candidate := relPath + suffix
			abs, verr := v.ValidateModulePath(candidate)
			if verr != nil {
				lastErr = verr
				continue
			}
			if info, statErr := os.Stat(abs); statErr == nil && !info.IsDir() {
				return abs, base, nil
			}
		}
	}
	if lastErr != nil {
		return "", "", lastErr
	}
	return "", "", diag.New(diag.KindModuleNotFound, diag.MOD001, "module not found: "+relPath)
}

// linkGraphLocked records forward edges importPath -> deps and their
// reverse edges. Must be called with r.mu held.
func (r *Resolver) linkGraphLocked(importPath string, deps []string) {
	node := r.nodeLocked(importPath)
	for _, d := range deps {
		node.forward[d] = true
		r.nodeLocked(d).reverse[importPath] = true
	}
}

func (r *Resolver) nodeLocked(path string) *graphNode {
	n, ok := r.graph[path]
	if !ok {
		n = &graphNode{forward: make(map[string]bool), reverse: make(map[string]bool)}
		r.graph[path] = n
	}
	return n
}

// Invalidate recursively invalidates a module and every (transitive)
// dependent via the reverse edges (spec.md §4.9).
func (r *Resolver) Invalidate(importPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked(importPath, make(map[string]bool))
}

func (r *Resolver) invalidateLocked(importPath string, seen map[string]bool) {
	if seen[importPath] {
		return
	}
	seen[importPath] = true
	if e, ok := r.cache[importPath]; ok {
		e.valid = false
	}
	node, ok := r.graph[importPath]
	if !ok {
		return
	}
	for dependent := range node.reverse {
		r.invalidateLocked(dependent, seen)
	}
}

// TopoSort returns the module graph in dependency-first order (a module
// appears before anything that depends on it), or an error if a cycle is
// present.
func (r *Resolver) TopoSort() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.graph))
	var order []string
	var visit func(node string, budget *resource.WorkBudget) error
	visit = func(node string, budget *resource.WorkBudget) error {
		if !budget.TryConsume(1) {
			return diag.New(diag.KindResourceExhausted, diag.SEC006, "cycle-detection work budget exhausted")
		}
		switch color[node] {
		case gray:
			return diag.New(diag.KindCircularDependency, diag.MOD002, "circular import detected at "+node).WithModule(node)
		case black:
			return nil
		}
		color[node] = gray
		if n, ok := r.graph[node]; ok {
			deps := make([]string, 0, len(n.forward))
			for d := range n.forward {
				deps = append(deps, d)
			}
			sortStrings(deps)
			for _, d := range deps {
				if err := visit(d, budget); err != nil {
					return err
				}
			}
		}
		color[node] = black
		order = append(order, node)
		return nil
	}

	budget := r.monitor.NewWorkBudget(r.cycleBudget())
	nodes := make([]string, 0, len(r.graph))
	for n := range r.graph {
		nodes = append(nodes, n)
	}
	sortStrings(nodes)
	for _, n := range nodes {
		if err := visit(n, budget); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (r *Resolver) cycleBudget() int64 {
	if len(r.graph) == 0 {
		return 1
	}
	return int64(len(r.graph)) * int64(len(r.graph))
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func circularImportError(importPath string, chain []string) error {
	return diag.New(diag.KindCircularDependency, diag.MOD002,
		fmt.Sprintf("circular import: %s -> %s", strings.Join(chain, " -> "), importPath)).WithModule(importPath)
}
