package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// NativeEngine evaluates code on goja. The environment script is compiled
// once and the compiled program is shared by every context. Interrupts stop
// the VM at the next instruction, so loops without calls are still bounded.
type NativeEngine struct {
	core
}

type nativeIsolate struct {
	program  *goja.Program
	maxStack int
}

// NewNative creates a goja-backed engine.
func NewNative(opts Options) (*NativeEngine, error) {
	opts.Backend = BackendNative
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	iso := &nativeIsolate{maxStack: opts.MaxCallStackSize}
	if opts.Env != "" {
		program, err := goja.Compile("env.js", opts.Env, false)
		if err != nil {
			return nil, &InitializationError{Op: "compile env", Err: err}
		}
		iso.program = program
	}

	e := &NativeEngine{}
	e.init(BackendNative, opts, iso)
	return e, nil
}

func (i *nativeIsolate) open() (scope, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(i.maxStack)
	return &nativeScope{vm: vm, program: i.program}, nil
}

func (i *nativeIsolate) dispose() {
	i.program = nil
}

// nativeScope is a fresh goja runtime used for one evaluation.
type nativeScope struct {
	vm      *goja.Runtime
	program *goja.Program
}

func (s *nativeScope) installConsole(sink consoleSink) error {
	return catchNative(func() error {
		global := s.vm.GlobalObject()
		if err := global.Set("global", global); err != nil {
			return err
		}

		console := s.vm.NewObject()
		log := func(call goja.FunctionCall) goja.Value {
			args := make([]Value, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				args = append(args, exportNative(arg))
			}
			sink(args)
			return goja.Undefined()
		}
		if err := console.Set("log", log); err != nil {
			return err
		}
		return global.Set("console", console)
	})
}

func (s *nativeScope) runEnv() error {
	if s.program == nil {
		return nil
	}
	return catchNative(func() error {
		_, err := s.vm.RunProgram(s.program)
		return wrapNativeError(err)
	})
}

func (s *nativeScope) run(code string) error {
	return catchNative(func() error {
		_, err := s.vm.RunString(code)
		return wrapNativeError(err)
	})
}

func (s *nativeScope) setGlobal(name string, v Value) error {
	return catchNative(func() error {
		return s.vm.Set(name, s.toNative(v, 0))
	})
}

func (s *nativeScope) eval(code string, warn func(error)) (Value, error) {
	var out Value
	err := catchNative(func() error {
		v, err := s.vm.RunString(code)
		if err != nil {
			return wrapNativeError(err)
		}
		out = exportNativeResult(v, warn)
		return nil
	})
	return out, err
}

func (s *nativeScope) interrupt(cause error) {
	s.vm.Interrupt(cause)
}

func (s *nativeScope) release() {
	s.vm.ClearInterrupt()
	s.vm = nil
	s.program = nil
}

// catchNative converts goja panics raised outside Run* (getters during
// export, interrupts) into errors.
func catchNative(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case *goja.Exception:
				err = wrapNativeError(x)
			case *goja.InterruptedError:
				err = x
			case error:
				err = x
			default:
				err = fmt.Errorf("native: %v", r)
			}
		}
	}()
	return fn()
}

func wrapNativeError(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return err
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &RuntimeError{
			Name:    "SyntaxError",
			Message: strings.TrimPrefix(syntax.Error(), "SyntaxError: "),
		}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return nativeRuntimeError(exc)
	}

	return &RuntimeError{Name: "Error", Message: err.Error()}
}

func nativeRuntimeError(exc *goja.Exception) *RuntimeError {
	re := &RuntimeError{Message: exc.Error()}

	val := exc.Value()
	if val == nil {
		return re
	}
	re.Value = exportNative(val)

	_ = catchNative(func() error {
		re.Message = val.String()
		obj, ok := val.(*goja.Object)
		if !ok {
			return nil
		}
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			re.Name = name.String()
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			re.Message = msg.String()
		}
		return nil
	})

	// Compile errors reach us as exceptions whose message repeats the name.
	if re.Name == "SyntaxError" {
		re.Message = strings.TrimPrefix(re.Message, "SyntaxError: ")
	}
	return re
}
