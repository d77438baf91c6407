package optimize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// collect returns every element under n matching keep, in document order.
// Collecting first lets callers mutate the tree without upsetting the walk.
func collect(n *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && keep(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func first(n *html.Node, a atom.Atom) *html.Node {
	found := collect(n, func(n *html.Node) bool { return n.DataAtom == a })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// setDefault sets key only when the author has not.
func setDefault(n *html.Node, key, val string) bool {
	if _, ok := attr(n, key); ok {
		return false
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	return true
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func hasClass(n *html.Node, class string) bool {
	v, _ := attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// styleHas reports whether the inline style already declares prop.
func styleHas(n *html.Node, prop string) bool {
	v, _ := attr(n, "style")
	for _, decl := range strings.Split(v, ";") {
		name, _, _ := strings.Cut(decl, ":")
		if strings.EqualFold(strings.TrimSpace(name), prop) {
			return true
		}
	}
	return false
}

// appendStyle adds declarations to the inline style.
func appendStyle(n *html.Node, decl string) {
	v, _ := attr(n, "style")
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasSuffix(v, ";") {
		v += ";"
	}
	if v != "" {
		v += " "
	}
	setAttr(n, "style", v+decl)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a, Attr: attrs}
}

func inlineScript(id, body string) *html.Node {
	s := element(atom.Script, html.Attribute{Key: "id", Val: id})
	s.AppendChild(&html.Node{Type: html.TextNode, Data: body})
	return s
}

// prepend inserts child as the first child of parent.
func prepend(parent, child *html.Node) {
	if parent.FirstChild == nil {
		parent.AppendChild(child)
		return
	}
	parent.InsertBefore(child, parent.FirstChild)
}

// insertAfter inserts child right after sibling.
func insertAfter(sibling, child *html.Node) {
	if sibling.NextSibling == nil {
		sibling.Parent.AppendChild(child)
		return
	}
	sibling.Parent.InsertBefore(child, sibling.NextSibling)
}
