package xform

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/google/uuid"
)

// Document is an XML-backed FormSession. Answers are whatever the instance
// XML holds; validation and post-processing use the definition's binds.
type Document struct {
	doc  *xmlquery.Node
	root *xmlquery.Node
	def  *Definition

	instanceFile string
	lastSaved    string

	now func() time.Time
}

var _ FormSession = (*Document)(nil)

// OpenDocument loads the instance XML at instanceFile. def may be nil, in
// which case validation always succeeds and the whole instance is submitted.
// A missing meta/instanceID is generated.
func OpenDocument(instanceFile, lastSaved string, def *Definition) (*Document, error) {
	data, err := os.ReadFile(instanceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read instance: %w", err)
	}
	return NewDocument(data, instanceFile, lastSaved, def)
}

// NewDocument builds a Document from instance XML that will be saved to
// instanceFile.
func NewDocument(data []byte, instanceFile, lastSaved string, def *Definition) (*Document, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance: %w", err)
	}
	root := rootElement(doc)
	if root == nil {
		return nil, fmt.Errorf("instance has no root element")
	}
	if def == nil {
		def = &Definition{}
	}

	d := &Document{
		doc:          doc,
		root:         root,
		def:          def,
		instanceFile: instanceFile,
		lastSaved:    lastSaved,
		now:          time.Now,
	}
	d.ensureInstanceID()
	return d, nil
}

func (d *Document) meta() *xmlquery.Node {
	if m := xmlquery.FindOne(d.doc, localPath("meta")); m != nil {
		return m
	}
	return ensureChild(d.root, "meta")
}

func (d *Document) ensureInstanceID() {
	id := ensureChild(d.meta(), "instanceID")
	if strings.TrimSpace(id.InnerText()) == "" {
		setText(id, "uuid:"+uuid.NewString())
	}
}

func (d *Document) ValidateAnswers(markCompleted bool) (ValidationResult, error) {
	for _, b := range d.def.Binds {
		nodes, err := xmlquery.QueryAll(d.doc, b.Nodeset)
		if err != nil {
			return ValidationResult{}, fmt.Errorf("invalid bind nodeset %q: %w", b.Nodeset, err)
		}
		for _, n := range nodes {
			value := strings.TrimSpace(n.InnerText())
			if value == "" {
				if markCompleted && b.Required {
					return ValidationResult{
						Outcome: ValidationRequiredMissing,
						Field:   b.Nodeset,
						Message: "Sorry, this response is required!",
					}, nil
				}
				continue
			}
			if b.Constraint != "" && !constraintHolds(b.Constraint, n) {
				msg := b.ConstraintMessage
				if msg == "" {
					msg = "Sorry, this response is invalid!"
				}
				return ValidationResult{Outcome: ValidationConstraintViolated, Field: b.Nodeset, Message: msg}, nil
			}
		}
	}
	return ValidationResult{Outcome: ValidationOK}, nil
}

// constraintHolds evaluates a constraint with the answer as context node.
// Expressions this evaluator cannot compile are treated as satisfied.
func constraintHolds(constraint string, n *xmlquery.Node) bool {
	expr, err := xpath.Compile(constraint)
	if err != nil {
		return true
	}
	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(n)).(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case *xpath.NodeIterator:
		return v.MoveNext()
	}
	return true
}

// PostProcess fills end-of-form timestamps.
func (d *Document) PostProcess() error {
	stamp := d.now().Format("2006-01-02T15:04:05.000-07:00")
	for _, b := range d.def.Binds {
		if !b.PreloadEnd {
			continue
		}
		nodes, err := xmlquery.QueryAll(d.doc, b.Nodeset)
		if err != nil {
			return fmt.Errorf("invalid bind nodeset %q: %w", b.Nodeset, err)
		}
		for _, n := range nodes {
			setText(n, stamp)
		}
	}
	return nil
}

func (d *Document) SubmissionMetadata() SubmissionMetadata {
	var md SubmissionMetadata
	if n := xmlquery.FindOne(d.doc, localPath("meta", "instanceName")); n != nil {
		md.InstanceName = strings.TrimSpace(n.InnerText())
	}
	if n := xmlquery.FindOne(d.doc, localPath("meta", "instanceID")); n != nil {
		md.InstanceID = strings.TrimSpace(n.InnerText())
	}
	return md
}

func (d *Document) FilledInXML() ([]byte, error) {
	return serialize(d.root), nil
}

func (d *Document) SubmissionXML() ([]byte, error) {
	n, err := d.submissionNode()
	if err != nil {
		return nil, err
	}
	return serialize(n), nil
}

func (d *Document) submissionNode() (*xmlquery.Node, error) {
	if d.def.SubmissionRef == "" {
		return d.root, nil
	}
	n, err := xmlquery.Query(d.doc, d.def.SubmissionRef)
	if err != nil {
		return nil, fmt.Errorf("invalid submission ref %q: %w", d.def.SubmissionRef, err)
	}
	if n == nil {
		return nil, fmt.Errorf("submission ref %q matches nothing", d.def.SubmissionRef)
	}
	return n, nil
}

func (d *Document) IsSubmissionEntireForm() bool {
	n, err := d.submissionNode()
	return err == nil && n == d.root
}

func (d *Document) InstanceFile() string  { return d.instanceFile }
func (d *Document) LastSavedPath() string { return d.lastSaved }

func (d *Document) FormIdentity() (string, string) {
	return attr(d.root, "id"), attr(d.root, "version")
}
