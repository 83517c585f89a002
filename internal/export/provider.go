package export

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// exportsFile is the parsed YAML structure for the exports file:
// exports: {smb: [...], nfs: [...]}
type exportsFile struct {
	Exports map[string][]ShareExport `yaml:"exports"`
}

// FileProvider reads exports from a YAML file maintained by the
// surrounding application. Each Snapshot is a single full read of the
// file, so a regeneration always sees one coherent state.
type FileProvider struct {
	path string
}

// NewFileProvider returns a provider backed by the given YAML path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Snapshot implements Provider.
func (p *FileProvider) Snapshot(ctx context.Context, kind ServiceKind) ([]ShareExport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read exports file: %w", err)
	}

	var parsed exportsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse exports file: %w", err)
	}

	exports := parsed.Exports[string(kind)]
	out := make([]ShareExport, len(exports))
	copy(out, exports)
	return out, nil
}

// StaticProvider serves a fixed in-memory export set per kind. Callers
// may replace a kind's set at runtime; reads and writes are safe to
// interleave.
type StaticProvider struct {
	mu      sync.RWMutex
	exports map[ServiceKind][]ShareExport
}

// NewStaticProvider returns an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{exports: make(map[ServiceKind][]ShareExport)}
}

// Set replaces the export set for one kind.
func (p *StaticProvider) Set(kind ServiceKind, exports []ShareExport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]ShareExport, len(exports))
	copy(copied, exports)
	p.exports[kind] = copied
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot(ctx context.Context, kind ServiceKind) ([]ShareExport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	exports := p.exports[kind]
	out := make([]ShareExport, len(exports))
	copy(out, exports)
	return out, nil
}
