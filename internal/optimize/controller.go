package optimize

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/obsidianstack/vitals/internal/config"
)

// markerName is the meta tag that records a document was already optimized.
const markerName = "vitals-optimized"

// Script element ids, so repeated passes and page code can find them.
const (
	yieldScriptID   = "vitals-yield"
	passiveScriptID = "vitals-passive"
	gateScriptID    = "vitals-gate"
)

// Report lists what one Apply call changed.
type Report struct {
	Preloaded           []string `json:"preloaded,omitempty"`
	DeferredStylesheets []string `json:"deferred_stylesheets,omitempty"`
	EagerImages         int      `json:"eager_images"`
	LazyImages          int      `json:"lazy_images"`
	GatedScripts        []string `json:"gated_scripts,omitempty"`
	ReservedSlots       int      `json:"reserved_slots"`
	SizedMedia          int      `json:"sized_media"`
	YieldHelper         bool     `json:"yield_helper"`
	PassiveListeners    bool     `json:"passive_listeners"`

	// Skipped is set when the document was already optimized or optimizations
	// are disabled.
	Skipped bool `json:"skipped"`
}

// Changes returns the number of individual mutations in r.
func (r Report) Changes() int {
	n := len(r.Preloaded) + len(r.DeferredStylesheets) + r.EagerImages + r.LazyImages +
		len(r.GatedScripts) + r.ReservedSlots + r.SizedMedia
	if r.YieldHelper {
		n++
	}
	if r.PassiveListeners {
		n++
	}
	return n
}

// Controller applies a fixed set of loading mitigations to HTML documents.
// It is open-loop: nothing it does depends on measured metrics.
//
// Controller is safe for concurrent use; Update swaps the settings atomically
// with respect to Apply.
type Controller struct {
	mu     sync.RWMutex
	engine config.EngineConfig
	opt    config.OptimizeConfig
}

// New returns a Controller for the given settings.
func New(engine config.EngineConfig, opt config.OptimizeConfig) *Controller {
	return &Controller{engine: engine, opt: opt}
}

// Update replaces the settings used by later calls.
func (c *Controller) Update(engine config.EngineConfig, opt config.OptimizeConfig) {
	c.mu.Lock()
	c.engine, c.opt = engine, opt
	c.mu.Unlock()
}

func (c *Controller) settings() (config.EngineConfig, config.OptimizeConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine, c.opt
}

// Apply mutates doc once. A document that already carries the marker meta tag
// is left untouched.
func (c *Controller) Apply(doc *html.Node) Report {
	eng, opt := c.settings()
	if !eng.EnableOptimizations {
		return Report{Skipped: true}
	}

	head := first(doc, atom.Head)
	body := first(doc, atom.Body)
	if head == nil || body == nil {
		return Report{Skipped: true}
	}
	if optimized(head) {
		return Report{Skipped: true}
	}

	var rep Report

	// Inserted at the head's start in reverse order, so the final order is
	// marker, passive listeners, yield helper, preloads.
	if eng.EnablePreloading {
		rep.Preloaded = preload(head, opt.CriticalResources)
	}
	prepend(head, inlineScript(yieldScriptID, yieldScript))
	rep.YieldHelper = true
	prepend(head, inlineScript(passiveScriptID, passiveScript))
	rep.PassiveListeners = true
	prepend(head, element(atom.Meta,
		html.Attribute{Key: "name", Val: markerName},
		html.Attribute{Key: "content", Val: "1"},
	))

	rep.DeferredStylesheets = deferStylesheets(doc, opt)
	if eng.EnableLazyLoading {
		rep.EagerImages, rep.LazyImages = hintImages(doc, opt.EagerImages)
	}
	rep.SizedMedia = sizeMedia(doc, opt.DefaultAspectRatio)
	rep.ReservedSlots = reserveSlots(doc, opt.ReservedSlots)
	rep.GatedScripts = gateScripts(doc, opt.ThirdParty)
	if len(rep.GatedScripts) > 0 {
		body.AppendChild(inlineScript(gateScriptID, gateScript))
	}
	return rep
}

// Rewrite parses r, applies the controller and renders the result to w.
func (c *Controller) Rewrite(r io.Reader, w io.Writer) (Report, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Report{}, fmt.Errorf("optimize: parse html: %w", err)
	}
	rep := c.Apply(doc)
	if err := html.Render(w, doc); err != nil {
		return Report{}, fmt.Errorf("optimize: render html: %w", err)
	}
	return rep, nil
}

// ModifyResponse rewrites uncompressed text/html responses. It fits
// httputil.ReverseProxy.ModifyResponse; other responses pass through.
func (c *Controller) ModifyResponse(resp *http.Response) error {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mt != "text/html" {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		slog.Debug("optimize: skipping encoded response", "encoding", enc)
		return nil
	}

	var buf bytes.Buffer
	rep, err := c.Rewrite(resp.Body, &buf)
	resp.Body.Close()
	if err != nil {
		return err
	}

	resp.Body = io.NopCloser(&buf)
	resp.ContentLength = int64(buf.Len())
	resp.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
	resp.Header.Del("ETag")

	path := ""
	if resp.Request != nil {
		path = resp.Request.URL.Path
	}
	slog.Debug("optimize: rewrote document", "path", path, "changes", rep.Changes(), "skipped", rep.Skipped)
	return nil
}

func optimized(head *html.Node) bool {
	for _, m := range collect(head, func(n *html.Node) bool { return n.DataAtom == atom.Meta }) {
		if v, _ := attr(m, "name"); v == markerName {
			return true
		}
	}
	return false
}

// preload injects <link rel=preload> for every resource not already preloaded.
func preload(head *html.Node, resources []config.Resource) []string {
	existing := make(map[string]bool)
	for _, l := range collect(head, func(n *html.Node) bool { return n.DataAtom == atom.Link }) {
		if rel, _ := attr(l, "rel"); strings.EqualFold(rel, "preload") {
			href, _ := attr(l, "href")
			existing[href] = true
		}
	}

	var out []string
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if existing[r.Href] {
			continue
		}
		existing[r.Href] = true
		link := element(atom.Link,
			html.Attribute{Key: "rel", Val: "preload"},
			html.Attribute{Key: "href", Val: r.Href},
			html.Attribute{Key: "as", Val: r.As},
		)
		if r.Type != "" {
			setAttr(link, "type", r.Type)
		}
		if r.Crossorigin {
			setAttr(link, "crossorigin", "")
		}
		if r.As == "image" {
			setAttr(link, "fetchpriority", "high")
		}
		prepend(head, link)
		out = append([]string{r.Href}, out...)
	}
	return out
}

// deferStylesheets applies the media=print swap to matching stylesheets and
// adds a <noscript> fallback after each.
func deferStylesheets(doc *html.Node, opt config.OptimizeConfig) []string {
	if len(opt.DeferredStylesheets) == 0 {
		return nil
	}
	critical := make(map[string]bool, len(opt.CriticalResources))
	for _, r := range opt.CriticalResources {
		critical[r.Href] = true
	}

	links := collect(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Link || n.Parent == nil || n.Parent.DataAtom == atom.Noscript {
			return false
		}
		rel, _ := attr(n, "rel")
		return strings.EqualFold(rel, "stylesheet")
	})

	var out []string
	for _, l := range links {
		href, _ := attr(l, "href")
		if href == "" || critical[href] || !matchesAny(href, opt.DeferredStylesheets) {
			continue
		}
		media, ok := attr(l, "media")
		if ok && media == "print" {
			continue
		}
		if !ok || media == "" {
			media = "all"
		}

		fallback := element(atom.Link,
			html.Attribute{Key: "rel", Val: "stylesheet"},
			html.Attribute{Key: "href", Val: href},
		)
		ns := element(atom.Noscript)
		ns.AppendChild(fallback)
		insertAfter(l, ns)

		setAttr(l, "media", "print")
		setAttr(l, "onload", "this.onload=null;this.media='"+media+"'")
		out = append(out, href)
	}
	return out
}

func matchesAny(href string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" || strings.Contains(href, p) {
			return true
		}
	}
	return false
}

// hintImages marks the first eager images as high priority and every later
// image as lazy with async decoding. Author-set attributes win.
func hintImages(doc *html.Node, eager int) (nEager, nLazy int) {
	imgs := collect(doc, func(n *html.Node) bool { return n.DataAtom == atom.Img })
	for i, img := range imgs {
		if i < eager {
			if setDefault(img, "loading", "eager") {
				nEager++
			}
			setDefault(img, "fetchpriority", "high")
			continue
		}
		if setDefault(img, "loading", "lazy") {
			nLazy++
		}
		setDefault(img, "decoding", "async")
	}
	return nEager, nLazy
}

// sizeMedia gives img, video and iframe elements without intrinsic sizing an
// aspect-ratio so late loads do not shift layout.
func sizeMedia(doc *html.Node, ratio string) int {
	if ratio == "" {
		return 0
	}
	media := collect(doc, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Img, atom.Video, atom.Iframe:
			return true
		}
		return false
	})
	var n int
	for _, m := range media {
		_, hasW := attr(m, "width")
		_, hasH := attr(m, "height")
		if (hasW && hasH) || styleHas(m, "aspect-ratio") {
			continue
		}
		appendStyle(m, "aspect-ratio: "+ratio+"; height: auto;")
		n++
	}
	return n
}

// reserveSlots adds min-height to every element of each slot class.
func reserveSlots(doc *html.Node, slots []config.Slot) int {
	var n int
	for _, s := range slots {
		for _, el := range collect(doc, func(n *html.Node) bool { return hasClass(n, s.Class) }) {
			if styleHas(el, "min-height") {
				continue
			}
			appendStyle(el, "min-height: "+s.MinHeight+";")
			n++
		}
	}
	return n
}

// gateScripts neutralizes matching external scripts so the gate bootstrap can
// load them when their trigger fires.
func gateScripts(doc *html.Node, gates []config.ScriptGate) []string {
	if len(gates) == 0 {
		return nil
	}
	scripts := collect(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Script {
			return false
		}
		_, ok := attr(n, "src")
		return ok
	})

	var out []string
	for _, s := range scripts {
		src, _ := attr(s, "src")
		for _, g := range gates {
			if !strings.Contains(src, g.Match) {
				continue
			}
			removeAttr(s, "src")
			removeAttr(s, "async")
			removeAttr(s, "defer")
			setAttr(s, "type", "text/plain")
			setAttr(s, "data-vitals-src", src)
			setAttr(s, "data-vitals-trigger", g.Trigger)
			if g.Element != "" {
				setAttr(s, "data-vitals-element", g.Element)
			}
			out = append(out, src)
			break
		}
	}
	return out
}
