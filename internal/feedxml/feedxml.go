// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package feedxml parses RSS and Atom feed bodies into a generic document tree.
//
// Unlike full-featured feed libraries it deliberately preserves the raw item
// structure: namespaced child elements, their attributes and nesting survive
// parsing, because the extraction engine keys off nonstandard vocabularies
// (torznab attr pairs, nested torrent sub-trees, indexer extension elements)
// that flattened feed models throw away.
package feedxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Attr is a single element attribute. Namespace declarations are consumed
// during parsing and never appear here.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the parsed feed tree.
type Node struct {
	// Name is the local element name as it appeared in the document.
	Name string
	// FullName is the prefix-qualified name (e.g. "vuze:seeds") when the
	// element was written with a namespace prefix, otherwise equal to Name.
	FullName string
	// Value is the concatenated character data directly inside the element.
	Value    string
	Attrs    []Attr
	Children []*Node
}

// Attr returns the value of the named attribute, matched case-insensitively.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first direct child whose local name matches, ignoring
// case, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Item is a single feed entry (<item> or Atom <entry>).
type Item struct {
	Node *Node
}

// Channel groups the items of one feed channel. For Atom documents the feed
// element itself acts as the only channel.
type Channel struct {
	Node  *Node
	Items []*Item
}

// Document is a fully parsed feed.
type Document struct {
	Channels []*Channel
	// Atom reports whether the document was an Atom feed rather than RSS/RDF.
	Atom bool
}

// Title returns the decoded item title text.
func (it *Item) Title() string {
	if n := it.Node.Child("title"); n != nil {
		return strings.TrimSpace(n.Value)
	}
	return ""
}

// Link returns the item link. For Atom entries where <link> carries no text
// the href attribute of the first link element is used instead.
func (it *Item) Link() string {
	n := it.Node.Child("link")
	if n == nil {
		return ""
	}
	if v := strings.TrimSpace(n.Value); v != "" {
		return v
	}
	if href, ok := n.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

// GUID returns the item's unique identifier (<guid>, or Atom <id>).
func (it *Item) GUID() string {
	if n := it.Node.Child("guid"); n != nil {
		return strings.TrimSpace(n.Value)
	}
	if n := it.Node.Child("id"); n != nil {
		return strings.TrimSpace(n.Value)
	}
	return ""
}

// pubDateFormats lists the date layouts seen in the wild, most common first.
var pubDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC822Z,
	time.RFC822,
}

// Published returns the item publication date, or the zero time when absent
// or unparseable.
func (it *Item) Published() time.Time {
	var raw string
	for _, name := range []string{"pubDate", "published", "updated", "date"} {
		if n := it.Node.Child(name); n != nil {
			raw = strings.TrimSpace(n.Value)
			break
		}
	}
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range pubDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Parse decodes a feed body into a Document. An empty body yields an empty
// document without error; anything else that cannot be decoded into a
// recognisable RSS, RDF or Atom structure is a hard failure.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Document{}, nil
	}

	root, err := parseTree(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{}

	switch strings.ToLower(root.Name) {
	case "rss", "rdf":
		for _, c := range root.Children {
			if strings.EqualFold(c.Name, "channel") {
				doc.Channels = append(doc.Channels, buildChannel(c, "item"))
			}
		}
		// RDF feeds commonly place items at the root, next to the channel
		if len(doc.Channels) > 0 {
			for _, c := range root.Children {
				if strings.EqualFold(c.Name, "item") {
					doc.Channels[0].Items = append(doc.Channels[0].Items, &Item{Node: c})
				}
			}
		}
	case "channel":
		// tolerated: channel without the enclosing rss element
		doc.Channels = append(doc.Channels, buildChannel(root, "item"))
	case "feed":
		doc.Atom = true
		doc.Channels = append(doc.Channels, buildChannel(root, "entry"))
	default:
		return nil, fmt.Errorf("unrecognised feed root element %q", root.Name)
	}

	return doc, nil
}

func buildChannel(n *Node, itemName string) *Channel {
	ch := &Channel{Node: n}
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, itemName) {
			ch.Items = append(ch.Items, &Item{Node: c})
		}
	}
	return ch
}

// nsScope maps a namespace URI to the prefix it was declared with, for one
// element nesting level.
type nsScope map[string]string

func parseTree(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root   *Node
		stack  []*Node
		scopes []nsScope
		texts  []*strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode feed XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			scope := nsScope{}
			node := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns":
					scope[a.Value] = a.Name.Local
				case a.Name.Space == "" && a.Name.Local == "xmlns":
					// default namespace, no prefix
				default:
					node.Attrs = append(node.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
				}
			}
			scopes = append(scopes, scope)
			node.FullName = qualifiedName(t.Name, scopes)

			if root == nil {
				root = node
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
			texts = append(texts, &strings.Builder{})

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced close tag %q", t.Name.Local)
			}
			node := stack[len(stack)-1]
			node.Value = texts[len(texts)-1].String()
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
			scopes = scopes[:len(scopes)-1]

		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("no XML content in feed body")
	}
	if len(stack) != 0 {
		// lenient decoding can leave the tree open on truncated bodies;
		// close what we have so partial feeds still yield their items
		for i := len(stack) - 1; i >= 0; i-- {
			stack[i].Value = texts[i].String()
		}
	}
	return root, nil
}

// qualifiedName reconstructs the prefix:local form the document used.
// encoding/xml resolves prefixes to namespace URIs, so the declared prefixes
// are tracked per nesting level and looked up innermost-first.
func qualifiedName(name xml.Name, scopes []nsScope) string {
	if name.Space == "" {
		return name.Local
	}
	for i := len(scopes) - 1; i >= 0; i-- {
		if prefix, ok := scopes[i][name.Space]; ok {
			return prefix + ":" + name.Local
		}
	}
	// the decoder may hand back the raw prefix when the URI was never declared
	if !strings.Contains(name.Space, "/") && !strings.Contains(name.Space, ":") {
		return name.Space + ":" + name.Local
	}
	return name.Local
}
