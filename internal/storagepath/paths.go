// Package storagepath resolves the on-disk layout under the storage root:
//
//	<root>/instances/<folder>/<folder>.xml
//	<root>/forms/
//	<root>/.cache/<name>.save, <name>.index
//	<root>/collect.db
package storagepath

import (
	"path/filepath"
	"strings"

	"github.com/nexusforms/collect/internal/common"
)

const (
	InstancesDirName = "instances"
	FormsDirName     = "forms"
	CacheDirName     = ".cache"
	DatabaseFileName = "collect.db"
)

// Provider maps between relative database paths and absolute file paths.
type Provider struct {
	root string
}

// New returns a Provider rooted at root (made absolute when possible).
func New(root string) *Provider {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Provider{root: filepath.Clean(root)}
}

func (p *Provider) Root() string         { return p.root }
func (p *Provider) InstancesDir() string { return filepath.Join(p.root, InstancesDirName) }
func (p *Provider) FormsDir() string     { return filepath.Join(p.root, FormsDirName) }
func (p *Provider) CacheDir() string     { return filepath.Join(p.root, CacheDirName) }
func (p *Provider) DatabasePath() string { return filepath.Join(p.root, DatabaseFileName) }

// RelativePath returns path relative to the storage root. Paths outside the
// root are returned unchanged.
func (p *Provider) RelativePath(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(p.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// AbsolutePath resolves a stored relative path against the storage root.
func (p *Provider) AbsolutePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.root, filepath.FromSlash(path))
}

// InstanceFile returns the canonical instance XML for an instance folder name.
func (p *Provider) InstanceFile(folder string) string {
	return filepath.Join(p.InstancesDir(), folder, folder+".xml")
}

// SavepointFile is the crash-recovery snapshot for an instance file name.
func (p *Provider) SavepointFile(instanceName string) string {
	return filepath.Join(p.CacheDir(), instanceName+common.SavepointSuffix)
}

// IndexFile is the crash-recovery form index for an instance file name.
func (p *Provider) IndexFile(instanceName string) string {
	return filepath.Join(p.CacheDir(), instanceName+common.IndexSuffix)
}

// LastSavedFile is the last-saved snapshot for an instance file path.
func (p *Provider) LastSavedFile(instanceFile string) string {
	return filepath.Join(p.CacheDir(), "last-saved", filepath.Base(instanceFile))
}
