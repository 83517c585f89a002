package render

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/Mezraniwassim/moxnas-confd/internal/export"
)

// Result is one rendered configuration candidate. Checksum covers the
// configuration content below the generated-at banner, so two renders
// of the same export set compare equal regardless of wall clock.
type Result struct {
	Text     string
	Checksum string
}

// Renderer turns an ordered export set into service configuration
// text. Rendering is pure: it never touches the filesystem or the
// network, and the generated-at banner is the only element that
// depends on the clock.
type Renderer struct {
	clock func() time.Time
}

// Option customizes renderer behavior.
type Option func(*Renderer)

// WithClock overrides the clock used for the generated-at banner.
func WithClock(clock func() time.Time) Option {
	return func(r *Renderer) {
		r.clock = clock
	}
}

// New constructs a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the configuration candidate for the given kind.
// Unknown kinds and malformed exports fail without any side effects.
func (r *Renderer) Render(kind export.ServiceKind, exports []export.ShareExport) (Result, error) {
	var body string
	switch kind {
	case export.KindSMB:
		views, err := buildSMBViews(exports)
		if err != nil {
			return Result{}, err
		}
		rendered, err := executeTemplate(smbTemplate, views)
		if err != nil {
			return Result{}, err
		}
		body = rendered
	case export.KindNFS:
		views, err := buildNFSViews(exports)
		if err != nil {
			return Result{}, err
		}
		rendered, err := executeTemplate(nfsTemplate, views)
		if err != nil {
			return Result{}, err
		}
		body = rendered
	default:
		return Result{}, fmt.Errorf("unknown service kind %q", kind)
	}

	banner := fmt.Sprintf("# Generated by moxnas-confd on %s. Do not edit; changes are overwritten.\n",
		r.clock().UTC().Format(time.RFC3339))

	return Result{
		Text:     banner + body,
		Checksum: Fingerprint([]byte(body)),
	}, nil
}

func executeTemplate(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

var octalMask = regexp.MustCompile(`^0?[0-7]{3}$`)

func validateCommon(e export.ShareExport) error {
	if e.Name == "" {
		return &InvalidExportError{Export: e.Path, Field: "name", Reason: "must not be empty"}
	}
	if strings.ContainsAny(e.Name, "\n\r") {
		return &InvalidExportError{Export: e.Name, Field: "name", Reason: "must not contain line breaks"}
	}
	if e.Path == "" {
		return &InvalidExportError{Export: e.Name, Field: "path", Reason: "must not be empty"}
	}
	if !filepath.IsAbs(e.Path) {
		return &InvalidExportError{Export: e.Name, Field: "path", Reason: "must be an absolute path"}
	}
	if strings.ContainsAny(e.Path, "\n\r") {
		return &InvalidExportError{Export: e.Name, Field: "path", Reason: "must not contain line breaks"}
	}
	for _, user := range e.ValidUsers {
		if user == "" || strings.ContainsAny(user, " \t\n\r,") {
			return &InvalidExportError{Export: e.Name, Field: "valid_users", Reason: fmt.Sprintf("invalid user %q", user)}
		}
	}
	for _, host := range e.HostsAllow {
		if host == "" || strings.ContainsAny(host, " \t\n\r()") {
			return &InvalidExportError{Export: e.Name, Field: "hosts_allow", Reason: fmt.Sprintf("invalid host %q", host)}
		}
	}
	return nil
}

type smbShareView struct {
	Name          string
	Path          string
	Comment       string
	Browseable    bool
	ReadOnly      bool
	GuestOK       bool
	ValidUsers    string
	HostsAllow    string
	CreateMask    string
	DirectoryMask string
	RecycleBin    bool
	HideDotFiles  bool
}

func buildSMBViews(exports []export.ShareExport) ([]smbShareView, error) {
	views := make([]smbShareView, 0, len(exports))
	for _, e := range exports {
		if err := validateCommon(e); err != nil {
			return nil, err
		}
		if strings.ContainsAny(e.Name, "[]") {
			return nil, &InvalidExportError{Export: e.Name, Field: "name", Reason: "must not contain brackets"}
		}
		if e.CreateMask != "" && !octalMask.MatchString(e.CreateMask) {
			return nil, &InvalidExportError{Export: e.Name, Field: "create_mask", Reason: "must be an octal mode"}
		}
		if e.DirectoryMask != "" && !octalMask.MatchString(e.DirectoryMask) {
			return nil, &InvalidExportError{Export: e.Name, Field: "directory_mask", Reason: "must be an octal mode"}
		}
		views = append(views, smbShareView{
			Name:          e.Name,
			Path:          e.Path,
			Comment:       strings.ReplaceAll(e.Comment, "\n", " "),
			Browseable:    e.IsBrowseable(),
			ReadOnly:      e.ReadOnly,
			GuestOK:       e.GuestOK,
			ValidUsers:    strings.Join(e.ValidUsers, " "),
			HostsAllow:    strings.Join(e.HostsAllow, " "),
			CreateMask:    e.CreateMask,
			DirectoryMask: e.DirectoryMask,
			RecycleBin:    e.RecycleBin,
			HideDotFiles:  e.HideDotFiles,
		})
	}
	return views, nil
}

type nfsExportView struct {
	Path    string
	Clients string
}

func buildNFSViews(exports []export.ShareExport) ([]nfsExportView, error) {
	views := make([]nfsExportView, 0, len(exports))
	for _, e := range exports {
		if err := validateCommon(e); err != nil {
			return nil, err
		}
		if strings.ContainsAny(e.Path, " \t") {
			return nil, &InvalidExportError{Export: e.Name, Field: "path", Reason: "must not contain whitespace"}
		}

		options := []string{"rw"}
		if e.ReadOnly {
			options = []string{"ro"}
		}
		options = append(options, "sync", "no_subtree_check")
		if e.GuestOK {
			options = append(options, "all_squash")
		}
		optionList := strings.Join(options, ",")

		hosts := e.HostsAllow
		if len(hosts) == 0 {
			// No client restriction configured: export to everyone.
			hosts = []string{"*"}
		}
		clients := make([]string, 0, len(hosts))
		for _, host := range hosts {
			clients = append(clients, fmt.Sprintf("%s(%s)", host, optionList))
		}

		views = append(views, nfsExportView{
			Path:    e.Path,
			Clients: strings.Join(clients, " "),
		})
	}
	return views, nil
}

var smbTemplate = template.Must(template.New("smb").Parse(`[global]
   workgroup = WORKGROUP
   server string = MoxNAS file server
   server role = standalone server
   map to guest = Bad User
   load printers = no
   disable spoolss = yes
   log file = /var/log/samba/log.%m
   max log size = 1000
{{range .}}
[{{.Name}}]
   path = {{.Path}}
{{- if .Comment}}
   comment = {{.Comment}}
{{- end}}
   browseable = {{if .Browseable}}yes{{else}}no{{end}}
   read only = {{if .ReadOnly}}yes{{else}}no{{end}}
   guest ok = {{if .GuestOK}}yes{{else}}no{{end}}
{{- if .ValidUsers}}
   valid users = {{.ValidUsers}}
{{- end}}
{{- if .HostsAllow}}
   hosts allow = {{.HostsAllow}}
{{- end}}
{{- if .CreateMask}}
   create mask = {{.CreateMask}}
{{- end}}
{{- if .DirectoryMask}}
   directory mask = {{.DirectoryMask}}
{{- end}}
{{- if .RecycleBin}}
   vfs objects = recycle
   recycle:repository = .recycle
   recycle:keeptree = yes
   recycle:versions = yes
{{- end}}
{{- if .HideDotFiles}}
   hide dot files = yes
{{- end}}
{{end}}`))

var nfsTemplate = template.Must(template.New("nfs").Parse(`{{range .}}{{.Path}} {{.Clients}}
{{end}}`))
