package optimize

// yieldScript installs window.vitalsYield and window.vitalsRunChunked.
// vitalsYield prefers scheduler.yield, then scheduler.postTask, and falls back
// to a setTimeout(0) macrotask.
const yieldScript = `(function(){
if (window.vitalsYield) return;
window.vitalsYield = function(priority){
  var s = window.scheduler;
  if (s && typeof s.yield === "function") return s.yield();
  if (s && typeof s.postTask === "function") return s.postTask(function(){}, {priority: priority || "user-visible"});
  return new Promise(function(r){ setTimeout(r, 0); });
};
window.vitalsRunChunked = async function(items, fn, budgetMs){
  var budget = budgetMs || 50, start = performance.now();
  for (var i = 0; i < items.length; i++) {
    fn(items[i], i);
    if (performance.now() - start > budget) { await window.vitalsYield(); start = performance.now(); }
  }
};
})();`

// passiveScript makes scroll, wheel and touch listeners passive unless the
// caller passes an options object.
const passiveScript = `(function(){
var passive = {scroll: 1, wheel: 1, touchstart: 1, touchmove: 1};
var add = EventTarget.prototype.addEventListener;
EventTarget.prototype.addEventListener = function(type, fn, opts){
  if (passive[type] && (opts === undefined || typeof opts === "boolean")) {
    opts = {passive: true, capture: !!opts};
  }
  return add.call(this, type, fn, opts);
};
})();`

// gateScript loads every script[data-vitals-src] when its trigger fires.
const gateScript = `(function(){
function load(s){
  if (s.dataset.vitalsLoaded) return;
  s.dataset.vitalsLoaded = "1";
  var n = document.createElement("script");
  n.src = s.dataset.vitalsSrc; n.async = true;
  s.parentNode.insertBefore(n, s.nextSibling);
}
var onInteract = [];
document.querySelectorAll("script[data-vitals-src]").forEach(function(s){
  var t = s.dataset.vitalsTrigger;
  if (t === "idle") {
    (window.requestIdleCallback || function(cb){ setTimeout(cb, 1); })(function(){ load(s); });
  } else if (t === "visible" && "IntersectionObserver" in window) {
    var el = document.querySelector(s.dataset.vitalsElement);
    if (!el) { onInteract.push(s); return; }
    var io = new IntersectionObserver(function(es){
      if (es.some(function(e){ return e.isIntersecting; })) { io.disconnect(); load(s); }
    });
    io.observe(el);
  } else {
    onInteract.push(s);
  }
});
if (!onInteract.length) return;
var evs = ["click", "scroll", "keydown", "touchstart"];
function fire(){
  evs.forEach(function(e){ window.removeEventListener(e, fire, true); });
  onInteract.forEach(load);
}
evs.forEach(function(e){ window.addEventListener(e, fire, {once: true, passive: true, capture: true}); });
})();`
