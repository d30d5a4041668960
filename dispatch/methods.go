package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"

	"github.com/frameagent/frameagent/kb"
	"github.com/frameagent/frameagent/snapshot"
)

// clickPoint resolves the (x, y) to dispatch pointer events at, preferring
// the snapshot's own bounding box (already in main-viewport coordinates)
// and falling back to the center of DOM.getBoxModel's border quad (spec
// §4.6 step 2).
func clickPoint(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, box *snapshot.Rect) (x, y float64, err error) {
	if box != nil {
		return box.X + box.Width/2, box.Y + box.Height/2, nil
	}
	model, err := dom.GetBoxModel().WithBackendNodeID(r.BackendNodeID).Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return 0, 0, fmt.Errorf("dispatch: getBoxModel: %w", err)
	}
	if model == nil || len(model.Border) < 8 {
		return 0, 0, fmt.Errorf("dispatch: no box model for element")
	}
	b := model.Border
	x = (b[0] + b[2] + b[4] + b[6]) / 4
	y = (b[1] + b[3] + b[5] + b[7]) / 4
	return x, y, nil
}

func (d *Dispatcher) click(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, box *snapshot.Rect) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Click)
	defer cancel()

	x, y, err := clickPoint(ctx, s, r, box)
	if err != nil {
		return err
	}
	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(cdp.WithExecutor(ctx, s)); err != nil {
		return fmt.Errorf("dispatch: mouseMoved: %w", err)
	}
	if err := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).WithClickCount(1).Do(cdp.WithExecutor(ctx, s)); err != nil {
		return fmt.Errorf("dispatch: mousePressed: %w", err)
	}
	if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).WithClickCount(1).Do(cdp.WithExecutor(ctx, s)); err != nil {
		return fmt.Errorf("dispatch: mouseReleased: %w", err)
	}
	return nil
}

func (d *Dispatcher) hover(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, box *snapshot.Rect) error {
	x, y, err := clickPoint(ctx, s, r, box)
	if err != nil {
		return err
	}
	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(cdp.WithExecutor(ctx, s)); err != nil {
		return fmt.Errorf("dispatch: mouseMoved: %w", err)
	}
	return nil
}

// callOnNode wraps Runtime.callFunctionOn against r's resolved object,
// the shared primitive fill/selectOptionFromDropdown/check/uncheck build on
// (spec §4.6: "focus via Runtime.callFunctionOn(this.focus), set .value via
// callFunctionOn, dispatch input/change").
func callOnNode(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, fn string, args ...any) error {
	return callOnNodeOpt(ctx, s, r, fn, false, args...)
}

// callOnNodeAwait is callOnNode with awaitPromise set, used by
// scrollToPercentage whose probe script returns a Promise that resolves on
// scroll-position stability or its own internal timeout (spec §4.6:
// "resolving on position stability... or overall timeout").
func callOnNodeAwait(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, fn string, args ...any) error {
	return callOnNodeOpt(ctx, s, r, fn, true, args...)
}

func callOnNodeOpt(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, fn string, awaitPromise bool, args ...any) error {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		v, err := json.Marshal(a)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: v})
	}
	call := runtime.CallFunctionOn(fn).
		WithObjectID(r.ObjectID).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithAwaitPromise(awaitPromise)
	_, exc, err := call.Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return fmt.Errorf("dispatch: callFunctionOn: %w", err)
	}
	if exc != nil {
		return fmt.Errorf("dispatch: callFunctionOn exception: %s", exc.Text)
	}
	return nil
}

const focusJS = `function() { this.focus(); }`

func (d *Dispatcher) fill(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, value string) error {
	if err := callOnNode(ctx, s, r, focusJS); err != nil {
		return err
	}
	const setValueJS = `function(v) {
		this.value = v;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`
	return callOnNode(ctx, s, r, setValueJS, value)
}

func (d *Dispatcher) typeText(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, text string, trailingEnter bool) error {
	if err := callOnNode(ctx, s, r, focusJS); err != nil {
		return err
	}
	if err := input.InsertText(text).Do(cdp.WithExecutor(ctx, s)); err != nil {
		return fmt.Errorf("dispatch: insertText: %w", err)
	}
	if trailingEnter {
		return d.press(ctx, s, "Enter")
	}
	return nil
}

func (d *Dispatcher) press(ctx context.Context, s cdp.Executor, key string) error {
	events, ok := kb.EncodeName(key)
	if !ok {
		if len([]rune(key)) != 1 {
			return fmt.Errorf("dispatch: unrecognized key %q", key)
		}
		events = kb.Encode([]rune(key)[0])
	}
	for _, ev := range events {
		if err := ev.Do(cdp.WithExecutor(ctx, s)); err != nil {
			return fmt.Errorf("dispatch: dispatchKeyEvent %s: %w", ev.Type, err)
		}
	}
	return nil
}

func (d *Dispatcher) selectOption(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, value string) error {
	const selectJS = `function(v) {
		var matched = null;
		for (var i = 0; i < this.options.length; i++) {
			if (this.options[i].value === v) { matched = this.options[i]; break; }
		}
		if (!matched) {
			for (var j = 0; j < this.options.length; j++) {
				if (this.options[j].text === v) { matched = this.options[j]; break; }
			}
		}
		if (!matched) { throw new Error('no option matches ' + v); }
		matched.selected = true;
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`
	return callOnNode(ctx, s, r, selectJS, value)
}

func (d *Dispatcher) setChecked(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, checked bool) error {
	const checkJS = `function(c) {
		this.checked = c;
		this.dispatchEvent(new Event('change', {bubbles: true}));
		this.dispatchEvent(new Event('input', {bubbles: true}));
	}`
	return callOnNode(ctx, s, r, checkJS, checked)
}

func (d *Dispatcher) scrollToPercentage(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, pctArg string) error {
	var pct float64
	if _, err := fmt.Sscanf(pctArg, "%f", &pct); err != nil {
		return fmt.Errorf("dispatch: invalid percentage %q: %w", pctArg, err)
	}
	const scrollPctJS = `function(pct) {
		var el = this;
		var target = (el.scrollHeight - el.clientHeight) * (pct / 100);
		el.scrollTo({top: target, behavior: 'smooth'});
		return new Promise(function(resolve) {
			var last = el.scrollTop, stable = 0;
			var iv = setInterval(function() {
				var cur = el.scrollTop;
				stable = Math.abs(cur - last) < 1 ? stable + 1 : 0;
				last = cur;
				if (stable >= 3) { clearInterval(iv); resolve(true); }
			}, 100);
			setTimeout(function() { clearInterval(iv); resolve(false); }, 4000);
		});
	}`
	return callOnNodeAwait(ctx, s, r, scrollPctJS, pct)
}

func (d *Dispatcher) scrollChunk(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, sign int) error {
	const scrollChunkJS = `function(sign) {
		var el = this;
		while (el && el !== document.body && (el.scrollHeight <= el.clientHeight)) {
			el = el.parentElement;
		}
		var target = el && el !== document.body ? el : (document.scrollingElement || document.documentElement);
		var amount = sign * (target.clientHeight || window.innerHeight);
		target.scrollBy({top: amount, behavior: 'smooth'});
	}`
	return callOnNode(ctx, s, r, scrollChunkJS, sign)
}
