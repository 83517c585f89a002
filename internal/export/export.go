package export

import "context"

// ServiceKind identifies one managed sharing service.
type ServiceKind string

const (
	KindSMB ServiceKind = "smb"
	KindNFS ServiceKind = "nfs"
)

// ShareExport describes one exported directory as the surrounding
// application sees it. The engine only reads these; it never mutates
// share records.
type ShareExport struct {
	Name         string   `yaml:"name"`
	Path         string   `yaml:"path"`
	Comment      string   `yaml:"comment,omitempty"`
	ReadOnly     bool     `yaml:"read_only,omitempty"`
	GuestOK      bool     `yaml:"guest_ok,omitempty"`
	Browseable   *bool    `yaml:"browseable,omitempty"`
	ValidUsers   []string `yaml:"valid_users,omitempty"`
	HostsAllow   []string `yaml:"hosts_allow,omitempty"`
	CreateMask   string   `yaml:"create_mask,omitempty"`
	DirectoryMask string  `yaml:"directory_mask,omitempty"`
	RecycleBin   bool     `yaml:"recycle_bin,omitempty"`
	HideDotFiles bool     `yaml:"hide_dot_files,omitempty"`
}

// IsBrowseable applies the documented default: shares are visible
// unless explicitly hidden.
func (e ShareExport) IsBrowseable() bool {
	if e.Browseable == nil {
		return true
	}
	return *e.Browseable
}

// Provider supplies a consistent snapshot of the exports for one
// service kind. A single call returns one coherent past state; it is
// never a torn mix of two edits.
type Provider interface {
	Snapshot(ctx context.Context, kind ServiceKind) ([]ShareExport, error)
}
