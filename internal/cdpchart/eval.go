package cdpchart

import (
	"encoding/json"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

const (
	codeNoChart    = "NO_CHART"
	codeEvalFailed = "EVAL_FAILURE"
)

// evalEnvelope is the JSON shape every page-side script returns.
type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func chartUnavailable(msg string, cause error) error {
	return &overlay.CodedError{Code: overlay.CodeChartUnavailable, Message: msg, Cause: cause}
}

func renderFailure(msg string, cause error) error {
	return &overlay.CodedError{Code: overlay.CodeRenderFailure, Message: msg, Cause: cause}
}

// decodeEnvelope unpacks a script result into out. A missing chart maps to
// CHART_UNAVAILABLE, every other page error to RENDER_FAILURE.
func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return renderFailure("invalid evaluation envelope", err)
	}
	if !env.OK {
		if env.ErrorCode == codeNoChart {
			return chartUnavailable(env.ErrorMessage, nil)
		}
		return renderFailure(env.ErrorCode+": "+env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return renderFailure("invalid evaluation data", err)
	}
	return nil
}

// jsPreamble resolves the Chart.js instance the page registered.
const jsPreamble = `
var chart = window.chartdeskChart || null;
if (!chart || !chart.canvas || !chart.canvas.isConnected) {
  return JSON.stringify({ok:false,error_code:"` + codeNoChart + `",error_message:"chart instance not found"});
}`

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(body string) string {
	return `(function(){
try {
` + jsPreamble + `
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + codeEvalFailed + `",error_message:String(err && err.message || err)});
}
})()`
}

// jsScales reads the pixel extent and value range of both axes.
func jsScales() string {
	return buildIIFE(`
var x = chart.scales.x, y = chart.scales.y;
if (!x || !y) return JSON.stringify({ok:false,error_code:"` + codeNoChart + `",error_message:"scales not ready"});
return JSON.stringify({ok:true,data:{
  x:{min:x.min,max:x.max,pixel_start:x.left,pixel_end:x.right},
  y:{min:y.min,max:y.max,pixel_start:y.bottom,pixel_end:y.top}
}});`)
}

// jsApply replaces the annotation plugin's map and redraws with mode.
func jsApply(annotations map[string]map[string]any, mode overlay.UpdateMode) string {
	return buildIIFE(`
var plugins = chart.options.plugins || (chart.options.plugins = {});
var ann = plugins.annotation || (plugins.annotation = {});
ann.annotations = ` + jsJSON(annotations) + `;
chart.update(` + jsJSON(string(mode)) + `);
return JSON.stringify({ok:true,data:{count:Object.keys(ann.annotations).length}});`)
}

func jsSetCursor(c overlay.Cursor) string {
	return buildIIFE(`
chart.canvas.style.cursor = ` + jsJSON(string(c)) + `;
return JSON.stringify({ok:true});`)
}

// jsInstallBridge makes the page forward pointer and key input through the
// named CDP binding.
func jsInstallBridge(binding string) string {
	return `(function(){
if (window.__chartdeskBridge) return JSON.stringify({ok:true});
window.__chartdeskBridge = true;
var send = function(msg) { try { window[` + jsJSON(binding) + `](JSON.stringify(msg)); } catch(_) {} };
var attach = function() {
  var chart = window.chartdeskChart;
  if (!chart || !chart.canvas) return false;
  var el = chart.canvas;
  var pos = function(e) { var r = el.getBoundingClientRect(); return {x:e.clientX-r.left, y:e.clientY-r.top}; };
  ["click","mousedown","mousemove","mouseup","mouseleave"].forEach(function(t) {
    el.addEventListener(t, function(e) { var p = pos(e); send({type:t,x:p.x,y:p.y}); });
  });
  document.addEventListener("keydown", function(e) { send({type:"keydown",key:e.key}); });
  send({type:"ready"});
  return true;
};
if (!attach()) {
  var timer = setInterval(function() { if (attach()) clearInterval(timer); }, 250);
}
return JSON.stringify({ok:true});
})()`
}
