package xform

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// localPath builds an XPath that matches elements by local name regardless
// of namespace prefix, e.g. localPath("meta", "instanceID").
func localPath(names ...string) string {
	var b strings.Builder
	b.WriteString("/*")
	for _, n := range names {
		b.WriteString("/*[local-name()='")
		b.WriteString(n)
		b.WriteString("']")
	}
	return b.String()
}

// attr returns the value of the attribute with the given local name.
func attr(n *xmlquery.Node, local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func setText(n *xmlquery.Node, value string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		xmlquery.RemoveFromTree(c)
		c = next
	}
	xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: value})
}

func childElement(parent *xmlquery.Node, local string) *xmlquery.Node {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local {
			return c
		}
	}
	return nil
}

// ensureChild returns the child element with the given local name, creating
// it (with the parent's prefix) when missing.
func ensureChild(parent *xmlquery.Node, local string) *xmlquery.Node {
	if c := childElement(parent, local); c != nil {
		return c
	}
	c := &xmlquery.Node{Type: xmlquery.ElementNode, Data: local, Prefix: parent.Prefix, NamespaceURI: parent.NamespaceURI}
	xmlquery.AddChild(parent, c)
	return c
}

func serialize(n *xmlquery.Node) []byte {
	return []byte(xmlHeader + n.OutputXML(true))
}
