package xform

import (
	"fmt"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/nexusforms/collect/internal/models"
)

// Bind is a model bind that the session acts on.
type Bind struct {
	Nodeset    string
	Type       string
	Required   bool
	Constraint string
	// ConstraintMessage is shown when Constraint fails.
	ConstraintMessage string
	// PreloadEnd marks a timestamp filled in when the form is finalized.
	PreloadEnd bool
}

// Definition is the part of an XForm definition the persistence pipeline
// needs.
type Definition struct {
	Title   string
	FormID  string
	Version string

	SubmissionURI string
	PublicKey     string
	// SubmissionRef selects the submitted subtree; empty means the whole
	// instance.
	SubmissionRef string
	AutoSend      string
	AutoDelete    string

	// GeometryXPath is the nodeset of the first geopoint bind.
	GeometryXPath string

	Binds []Bind
}

// ParseDefinition reads the XForm definition at path.
func ParseDefinition(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open form definition: %w", err)
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form definition %s: %w", path, err)
	}

	def := &Definition{}
	if t := xmlquery.FindOne(doc, "//*[local-name()='head']/*[local-name()='title']"); t != nil {
		def.Title = strings.TrimSpace(t.InnerText())
	}

	model := xmlquery.FindOne(doc, "//*[local-name()='head']/*[local-name()='model']")
	if model == nil {
		return nil, fmt.Errorf("form definition %s has no model", path)
	}

	primary := xmlquery.FindOne(model, "*[local-name()='instance'][not(@id)]/*")
	if primary == nil {
		return nil, fmt.Errorf("form definition %s has no primary instance", path)
	}
	def.FormID = attr(primary, "id")
	if def.FormID == "" {
		def.FormID = primary.Data
	}
	def.Version = attr(primary, "version")

	if sub := xmlquery.FindOne(model, "*[local-name()='submission']"); sub != nil {
		def.SubmissionURI = attr(sub, "action")
		def.PublicKey = strings.TrimSpace(attr(sub, "base64RsaPublicKey"))
		def.SubmissionRef = attr(sub, "ref")
		def.AutoSend = attr(sub, "auto-send")
		def.AutoDelete = attr(sub, "auto-delete")
	}

	for _, b := range xmlquery.Find(model, "*[local-name()='bind']") {
		bind := Bind{
			Nodeset:           attr(b, "nodeset"),
			Type:              attr(b, "type"),
			Required:          isTrue(attr(b, "required")),
			Constraint:        attr(b, "constraint"),
			ConstraintMessage: attr(b, "constraintMsg"),
			PreloadEnd:        attr(b, "preload") == "timestamp" && attr(b, "preloadParams") == "end",
		}
		if bind.Nodeset == "" {
			continue
		}
		if def.GeometryXPath == "" && bind.Type == "geopoint" {
			def.GeometryXPath = bind.Nodeset
		}
		def.Binds = append(def.Binds, bind)
	}
	return def, nil
}

func isTrue(expr string) bool {
	switch strings.TrimSpace(expr) {
	case "true()", "true", "1":
		return true
	}
	return false
}

// Form converts the definition into a Form record for the given file.
func (d *Definition) Form(formFilePath string) *models.Form {
	name := d.Title
	if name == "" {
		name = d.FormID
	}
	return &models.Form{
		DisplayName:        name,
		JrFormID:           d.FormID,
		JrVersion:          d.Version,
		FormFilePath:       formFilePath,
		SubmissionURI:      d.SubmissionURI,
		BASE64RSAPublicKey: d.PublicKey,
		GeometryXPath:      d.GeometryXPath,
		AutoSend:           d.AutoSend,
		AutoDelete:         d.AutoDelete,
	}
}

// InstanceIdentity is what can be learned from an instance file without a
// definition.
type InstanceIdentity struct {
	FormID     string
	Version    string
	InstanceID string
}

// ReadInstanceIdentity parses just enough of an instance file to identify
// its form.
func ReadInstanceIdentity(path string) (InstanceIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return InstanceIdentity{}, err
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return InstanceIdentity{}, fmt.Errorf("failed to parse instance %s: %w", path, err)
	}
	root := rootElement(doc)
	if root == nil {
		return InstanceIdentity{}, fmt.Errorf("instance %s has no root element", path)
	}

	id := InstanceIdentity{FormID: attr(root, "id"), Version: attr(root, "version")}
	if n := xmlquery.FindOne(doc, localPath("meta", "instanceID")); n != nil {
		id.InstanceID = strings.TrimSpace(n.InnerText())
	}
	return id, nil
}
