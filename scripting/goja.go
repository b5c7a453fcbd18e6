package scripting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/wudi/pdfxref/observability"
)

// GojaEngine runs scripts on a single goja runtime, so globals defined by
// one document script are visible to the next.
type GojaEngine struct {
	vm  *goja.Runtime
	log observability.Logger
}

func NewEngine(log observability.Logger) *GojaEngine {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &GojaEngine{vm: goja.New(), log: log}
}

// Compile checks the syntax of a script without running it.
func Compile(name, script string) error {
	if _, err := goja.Compile(name, script, false); err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	return nil
}

// Execute runs script and exports its completion value. Cancelling ctx
// interrupts a running script; the engine stays usable afterwards.
func (e *GojaEngine) Execute(ctx context.Context, name, script string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog, err := goja.Compile(name, script, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()
	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return val.Export(), nil
}

// Bind exposes host through the Acrobat style globals numPages, info,
// getPageLabel, gotoNamedDest, app.alert and console.println.
func (e *GojaEngine) Bind(host Host) error {
	app := e.vm.NewObject()
	if err := app.Set("alert", func(call goja.FunctionCall) goja.Value {
		host.Alert(argString(call, 0))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	console := e.vm.NewObject()
	if err := console.Set("println", func(call goja.FunctionCall) goja.Value {
		host.Print(argString(call, 0))
		return goja.Undefined()
	}); err != nil {
		return err
	}

	info := e.vm.NewObject()
	for k, v := range host.Info() {
		if err := info.Set(k, v); err != nil {
			return err
		}
	}

	globals := map[string]interface{}{
		"app":      app,
		"console":  console,
		"info":     info,
		"numPages": host.NumPages(),
		"getPageLabel": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return goja.Undefined()
			}
			return e.vm.ToValue(host.PageLabel(int(call.Arguments[0].ToInteger())))
		},
		"gotoNamedDest": func(call goja.FunctionCall) goja.Value {
			name := argString(call, 0)
			if !host.GotoNamedDest(name) {
				e.log.Debug("script referenced unknown destination", observability.String("name", name))
			}
			return goja.Undefined()
		},
	}
	for k, v := range globals {
		if err := e.vm.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func argString(call goja.FunctionCall, i int) string {
	if len(call.Arguments) <= i {
		return ""
	}
	return call.Arguments[i].String()
}
