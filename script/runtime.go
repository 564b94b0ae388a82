package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"findit/document"
)

// Runtime executes page scripts in one JavaScript global scope bound to the
// live document, the way a browser tab shares globals between scripts.
type Runtime struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	doc    *document.Document
	logger *zap.Logger
}

// NewRuntime creates a runtime whose `document` and `location` reflect doc.
func NewRuntime(doc *document.Document, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runtime{doc: doc, logger: logger.Named("runtime")}
	r.vm = r.newVM()
	return r
}

// Reset discards every global, as loading a new page does.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vm = r.newVM()
}

// Run executes code. Cancelling ctx interrupts a running script.
func (r *Runtime) Run(ctx context.Context, name, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	vm := r.vm
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_, err := vm.RunScript(name, code)
	close(done)
	wg.Wait()
	vm.ClearInterrupt()

	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) && ctx.Err() != nil {
		return fmt.Errorf("running %s: %w", name, ctx.Err())
	}
	return fmt.Errorf("running %s: %w", name, err)
}

// Global returns the exported value of a global variable, or nil.
func (r *Runtime) Global(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func (r *Runtime) newVM() *goja.Runtime {
	vm := goja.New()
	global := vm.GlobalObject()

	global.Set("window", global)
	global.Set("self", global)
	global.Set("console", r.console(vm))
	global.Set("document", r.document(vm))

	r.accessor(vm, global, "location", func() goja.Value {
		loc := vm.NewObject()
		if u := r.doc.URL(); u != nil {
			loc.Set("href", u.String())
			loc.Set("pathname", u.Path)
			loc.Set("hash", u.Fragment)
		}
		return loc
	}, nil)

	return vm
}

func (r *Runtime) console(vm *goja.Runtime) *goja.Object {
	c := vm.NewObject()
	logAt := func(log func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.String()
			}
			log("console", zap.String("message", fmt.Sprint(args...)))
			return goja.Undefined()
		}
	}
	c.Set("log", logAt(r.logger.Info))
	c.Set("warn", logAt(r.logger.Warn))
	c.Set("error", logAt(r.logger.Error))
	return c
}

func (r *Runtime) document(vm *goja.Runtime) *goja.Object {
	d := vm.NewObject()

	r.accessor(vm, d, "title",
		func() goja.Value { return vm.ToValue(r.doc.Title()) },
		func(v goja.Value) { r.doc.SetTitle(v.String()) },
	)
	d.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return r.wrap(vm, r.doc.First(call.Argument(0).String()))
	})
	d.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		return r.wrap(vm, r.doc.ByID(call.Argument(0).String()))
	})
	return d
}

// wrap exposes a node with the handful of members page scripts use.
func (r *Runtime) wrap(vm *goja.Runtime, n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}

	e := vm.NewObject()
	e.Set("tagName", n.Data)
	r.accessor(vm, e, "textContent",
		func() goja.Value { return vm.ToValue(r.doc.Text(n)) },
		func(v goja.Value) { r.doc.SetText(n, v.String()) },
	)
	e.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := r.doc.Attr(n, call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	e.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		r.doc.SetAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	return e
}

func (r *Runtime) accessor(vm *goja.Runtime, obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		r.logger.Error("defining property", zap.String("name", name), zap.Error(err))
	}
}
