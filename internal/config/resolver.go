package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gzhole/guardrails/internal/pattern"
	"github.com/gzhole/guardrails/internal/warnings"
)

// Resolver loads the global and project documents, migrates them, and
// merges them over the defaults into one immutable *Policy.
type Resolver struct {
	paths Paths
	sink  warnings.Sink
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex // serializes Load and Save
	global  Document
	project Document
	policy  atomic.Pointer[Policy]
}

type Option func(*Resolver)

// WithLogger sets the logger used for migration and reload diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithClock overrides time.Now, used to name migration backups.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver. Warnings about unreadable documents,
// invalid fields and migrations are sent to sink.
func NewResolver(paths Paths, sink warnings.Sink, opts ...Option) *Resolver {
	if sink == nil {
		sink = warnings.Discard{}
	}
	r := &Resolver{
		paths: paths,
		sink:  sink,
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Paths() Paths { return r.paths }

// Load reads both documents and rebuilds the effective policy. Missing or
// corrupt documents count as "no override"; Load never fails.
func (r *Resolver) Load() *Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Resolver) loadLocked() *Policy {
	r.global = r.loadScope(ScopeGlobal, r.paths.Global)
	r.project = r.loadScope(ScopeProject, r.paths.Project)

	p := Resolve(r.global, r.project, r.sink)
	r.policy.Store(p)
	r.log.Debug("policy resolved",
		"global", r.global != nil,
		"project", r.project != nil,
		"version", p.Version)
	return p
}

// Policy returns the current effective policy, loading it on first use.
func (r *Resolver) Policy() *Policy {
	if p := r.policy.Load(); p != nil {
		return p
	}
	return r.Load()
}

// Global returns an editable copy of the global document, or a new empty
// document when there is none.
func (r *Resolver) Global() Document {
	return r.scopeCopy(ScopeGlobal)
}

// Project returns an editable copy of the project document, or a new empty
// document when there is none.
func (r *Resolver) Project() Document {
	return r.scopeCopy(ScopeProject)
}

// Document returns an editable copy of the given scope's document.
func (r *Resolver) Document(scope Scope) Document {
	return r.scopeCopy(scope)
}

func (r *Resolver) scopeCopy(scope Scope) Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	var doc Document
	if scope == ScopeGlobal {
		doc = r.global
	} else {
		doc = r.project
	}
	if doc == nil {
		return NewDocument()
	}
	return doc.Clone()
}

// HasProject reports whether a project document was loaded.
func (r *Resolver) HasProject() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.project != nil
}

// Save replaces the scope's document on disk and reloads, so the returned
// policy always reflects what was written. The document is validated
// against the schema first; nothing is written if it does not decode.
func (r *Resolver) Save(scope Scope, doc Document) (*Policy, error) {
	path, err := r.pathFor(scope)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	doc = doc.Clone()
	if doc.Version() == "" {
		doc["version"] = CurrentVersion
	}
	if _, err := decodePolicy(Merge(toDocument(Defaults()), doc)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeDocument(path, doc); err != nil {
		return nil, fmt.Errorf("save %s config: %w", scope, err)
	}
	r.log.Info("config saved", "scope", string(scope), "path", path)
	return r.loadLocked(), nil
}

func (r *Resolver) pathFor(scope Scope) (string, error) {
	switch scope {
	case ScopeGlobal:
		return r.paths.Global, nil
	case ScopeProject:
		return r.paths.Project, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}

// loadScope reads, validates and migrates one document. It returns nil
// when the file is absent or unusable.
func (r *Resolver) loadScope(scope Scope, path string) Document {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.sink.Warn(fmt.Sprintf("[guardrails] ignoring %s config %s: %v", scope, path, err))
		}
		return nil
	}
	doc, err := ParseDocument(data)
	if err != nil {
		r.sink.Warn(fmt.Sprintf("[guardrails] ignoring %s config %s: %v", scope, path, err))
		return nil
	}

	doc = r.migrate(scope, path, data, doc)

	if _, err := decodePolicy(Merge(toDocument(Defaults()), doc)); err != nil {
		r.sink.Warn(fmt.Sprintf("[guardrails] ignoring %s config %s: %v", scope, path, err))
		return nil
	}
	return doc
}

// migrate runs pending migrations. The original bytes are backed up before
// anything is rewritten; if the backup or the write fails the migrated
// document is still used for this session.
func (r *Resolver) migrate(scope Scope, path string, original []byte, doc Document) Document {
	var applied []string
	for _, m := range Migrations {
		if !m.ShouldRun(doc) {
			continue
		}
		doc = m.Run(doc, r.sink)
		applied = append(applied, m.Name)
	}
	if len(applied) == 0 {
		return doc
	}
	r.log.Info("config migrated", "scope", string(scope), "path", path, "migrations", applied)

	backup := fmt.Sprintf("%s.%s.bak", path, r.now().Format("20060102-150405"))
	if err := os.WriteFile(backup, original, 0o600); err != nil {
		r.sink.Warn(fmt.Sprintf("[guardrails] could not back up %s before migration, leaving it unchanged on disk: %v", path, err))
		return doc
	}

	if err := writeDocument(path, doc); err != nil {
		r.sink.Warn(fmt.Sprintf("[guardrails] could not save migrated %s config %s: %v", scope, path, err))
		return doc
	}

	// Re-read to confirm the write landed.
	data, err := os.ReadFile(path)
	if err != nil {
		r.sink.Warn(fmt.Sprintf("[guardrails] could not re-read migrated %s config %s: %v", scope, path, err))
		return doc
	}
	confirmed, err := ParseDocument(data)
	if err != nil || !reflect.DeepEqual(normalizeJSON(confirmed), normalizeJSON(doc)) {
		r.sink.Warn(fmt.Sprintf("[guardrails] migrated %s config %s did not read back cleanly; using in-memory copy", scope, path))
		return doc
	}
	return confirmed
}

// Resolve merges defaults, global and project into a Policy. Either
// document may be nil.
func Resolve(global, project Document, sink warnings.Sink) *Policy {
	if sink == nil {
		sink = warnings.Discard{}
	}
	merged := Merge(toDocument(Defaults()), global, project)
	p, err := decodePolicy(merged)
	if err != nil {
		// Each scope was validated on its own; a combined failure means
		// something unexpected, so fall back to the defaults.
		sink.Warn(fmt.Sprintf("[guardrails] invalid merged config, using defaults: %v", err))
		p = Defaults()
	}

	// customPatterns replaces the entire dangerous pattern list and turns
	// off the built-in structural matchers: the user owns all matching.
	for _, doc := range []Document{project, global} {
		if doc == nil {
			continue
		}
		custom, ok, err := doc.Patterns(GateCustomPatterns)
		if err != nil {
			sink.Warn(fmt.Sprintf("[guardrails] ignoring customPatterns: %v", err))
			continue
		}
		if ok {
			p.PermissionGate.Patterns = custom
			p.PermissionGate.UseBuiltinMatchers = false
			break
		}
	}

	if _, err := ParsePackageManager(string(p.PackageManager.Selected)); err != nil {
		sink.Warn(fmt.Sprintf("[guardrails] %v; using %s", err, NPM))
		p.PackageManager.Selected = NPM
	}
	normalizeSlices(p)
	return p
}

func decodePolicy(doc Document) (*Policy, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &p, nil
}

// normalizeSlices replaces nil lists with empty ones so a resolved policy
// round-trips through JSON unchanged.
func normalizeSlices(p *Policy) {
	lists := []*[]pattern.Pattern{
		&p.EnvFiles.ProtectedPatterns,
		&p.EnvFiles.AllowedPatterns,
		&p.EnvFiles.ProtectedDirectories,
		&p.PermissionGate.Patterns,
		&p.PermissionGate.AllowedPatterns,
		&p.PermissionGate.AutoDenyPatterns,
	}
	for _, l := range lists {
		if *l == nil {
			*l = []pattern.Pattern{}
		}
	}
	if p.EnvFiles.ProtectedTools == nil {
		p.EnvFiles.ProtectedTools = []string{}
	}
}

// ToDocument renders a resolved policy as a document, e.g. to merge it
// again or to print it.
func ToDocument(p *Policy) Document {
	return toDocument(p)
}

func normalizeJSON(doc Document) any {
	var out any
	if err := remarshal(doc, &out); err != nil {
		return nil
	}
	return out
}

// writeDocument replaces path with doc atomically: write a temp file in the
// same directory, then rename over the original.
func writeDocument(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
