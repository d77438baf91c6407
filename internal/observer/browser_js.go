//go:build js && wasm

package observer

import (
	"fmt"
	"log/slog"
	"syscall/js"
)

// Browser is a Source backed by the page's PerformanceObserver.
type Browser struct {
	global js.Value
}

// NewBrowser returns a Source for the current page.
func NewBrowser() *Browser {
	return &Browser{global: js.Global()}
}

// Supported reports whether PerformanceObserver exists at all.
func (b *Browser) Supported() bool {
	po := b.global.Get("PerformanceObserver")
	return !po.IsUndefined() && !po.IsNull()
}

// supports checks PerformanceObserver.supportedEntryTypes when the browser
// exposes it. Older browsers without the list are assumed to support the type
// and fail later in observe().
func (b *Browser) supports(entryType string) bool {
	list := b.global.Get("PerformanceObserver").Get("supportedEntryTypes")
	if list.IsUndefined() || list.IsNull() {
		return true
	}
	return list.Call("includes", entryType).Bool()
}

// Observe implements Source. It creates one PerformanceObserver per call with
// buffered delivery, so entries recorded before subscription are replayed.
func (b *Browser) Observe(entryType string, fn func([]Entry)) (unsub Unsubscribe, err error) {
	if !b.Supported() || !b.supports(entryType) {
		return nil, ErrUnsupportedEntryType
	}

	cb := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		list := args[0].Call("getEntries")
		batch := make([]Entry, 0, list.Length())
		for i := 0; i < list.Length(); i++ {
			batch = append(batch, toEntry(list.Index(i)))
		}
		fn(batch)
		return nil
	})

	// observe() throws for types the engine cannot handle; syscall/js turns
	// that into a panic carrying a js.Error.
	defer func() {
		if r := recover(); r != nil {
			cb.Release()
			unsub, err = nil, fmt.Errorf("observer: observe %s: %v: %w", entryType, r, ErrUnsupportedEntryType)
		}
	}()

	po := b.global.Get("PerformanceObserver").New(cb)
	opts := map[string]any{"type": entryType, "buffered": true}
	if entryType == TypeEvent {
		// 40ms is the smallest threshold browsers accept; lower values are clamped.
		opts["durationThreshold"] = 40
	}
	po.Call("observe", js.ValueOf(opts))

	released := false
	return func() {
		if released {
			return
		}
		released = true
		po.Call("disconnect")
		cb.Release()
	}, nil
}

// Navigation reads the first navigation entry.
func (b *Browser) Navigation() (NavigationTiming, bool) {
	perf := b.global.Get("performance")
	if perf.IsUndefined() {
		return NavigationTiming{}, false
	}
	list := perf.Call("getEntriesByType", TypeNavigation)
	if list.Length() == 0 {
		slog.Debug("observer: navigation entry missing")
		return NavigationTiming{}, false
	}
	nav := list.Index(0)
	return NavigationTiming{
		RequestStart:  nav.Get("requestStart").Float(),
		ResponseStart: nav.Get("responseStart").Float(),
	}, true
}

// toEntry copies the fields the registry reads out of a JS PerformanceEntry.
func toEntry(v js.Value) Entry {
	e := Entry{
		Name:      v.Get("name").String(),
		EntryType: v.Get("entryType").String(),
		StartTime: v.Get("startTime").Float(),
		Duration:  v.Get("duration").Float(),
	}
	e.ProcessingStart = floatOr(v.Get("processingStart"))
	e.ProcessingEnd = floatOr(v.Get("processingEnd"))
	if id := v.Get("interactionId"); id.Type() == js.TypeNumber {
		e.InteractionID = uint64(id.Int())
	}
	e.Value = floatOr(v.Get("value"))
	if hri := v.Get("hadRecentInput"); hri.Type() == js.TypeBoolean {
		e.HadRecentInput = hri.Bool()
	}
	if el := v.Get("element"); el.Truthy() {
		e.Element = describeNode(el)
	}
	if srcs := v.Get("sources"); srcs.Truthy() {
		for i := 0; i < srcs.Length(); i++ {
			if node := srcs.Index(i).Get("node"); node.Truthy() {
				e.Sources = append(e.Sources, describeNode(node))
			}
		}
	}
	return e
}

func floatOr(v js.Value) float64 {
	if v.Type() != js.TypeNumber {
		return 0
	}
	return v.Float()
}

// describeNode renders a DOM node as TAG or TAG#id.
func describeNode(n js.Value) string {
	tag := n.Get("nodeName").String()
	if id := n.Get("id"); id.Type() == js.TypeString && id.String() != "" {
		return tag + "#" + id.String()
	}
	return tag
}
