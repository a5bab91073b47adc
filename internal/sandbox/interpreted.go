package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robertkrimen/otto"
	"github.com/robertkrimen/otto/parser"
)

// InterpretedEngine evaluates code on otto, a tree-walking ES5 interpreter.
// The environment source is parsed once for validation and re-run in every
// context. Interrupts are delivered between statements.
//
// otto has no call stack ceiling; deep recursion is bounded by the memory
// watchdog, which also counts goroutine stacks.
type InterpretedEngine struct {
	core
}

type interpretedIsolate struct {
	env string
}

// NewInterpreted creates an otto-backed engine.
func NewInterpreted(opts Options) (*InterpretedEngine, error) {
	opts.Backend = BackendInterpreted
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	if opts.Env != "" {
		if _, err := parser.ParseFile(nil, "env.js", opts.Env, 0); err != nil {
			return nil, &InitializationError{Op: "parse env", Err: err}
		}
	}

	e := &InterpretedEngine{}
	e.init(BackendInterpreted, opts, &interpretedIsolate{env: opts.Env})
	return e, nil
}

func (i *interpretedIsolate) open() (scope, error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	return &interpretedScope{vm: vm, env: i.env}, nil
}

func (i *interpretedIsolate) dispose() {
	i.env = ""
}

// interruptSignal is the panic value raised inside otto by an interrupt.
// otto's try/catch recovers any panic, so the interrupt re-arms itself and
// fires again at the next statement until the script unwinds.
type interruptSignal struct {
	cause error
}

// Globals used to run the main code under a catch that records the thrown
// value. otto reduces thrown non-Error values to their string form.
const (
	sourceSlot = "__scriptvm_source"
	thrownSlot = "__scriptvm_thrown"
)

const capturingRun = "try { eval(" + sourceSlot + ") } catch (e) { " + thrownSlot + " = e; throw e }"

type interpretedScope struct {
	vm  *otto.Otto
	env string
}

func (s *interpretedScope) installConsole(sink consoleSink) error {
	return s.guard(func() error {
		if _, err := s.vm.Run("var global = this;"); err != nil {
			return err
		}

		console, err := s.vm.Object("({})")
		if err != nil {
			return err
		}
		log := func(call otto.FunctionCall) otto.Value {
			args := make([]Value, 0, len(call.ArgumentList))
			for _, arg := range call.ArgumentList {
				args = append(args, exportInterpreted(arg))
			}
			sink(args)
			return otto.UndefinedValue()
		}
		if err := console.Set("log", log); err != nil {
			return err
		}
		return s.vm.Set("console", console)
	})
}

func (s *interpretedScope) runEnv() error {
	if s.env == "" {
		return nil
	}
	return s.run(s.env)
}

func (s *interpretedScope) run(code string) error {
	return s.guard(func() error {
		_, err := s.vm.Run(code)
		return wrapInterpretedError(err)
	})
}

func (s *interpretedScope) setGlobal(name string, v Value) error {
	return s.guard(func() error {
		val, err := s.toInterpreted(v, 0)
		if err != nil {
			return err
		}
		return s.vm.Set(name, val)
	})
}

func (s *interpretedScope) eval(code string, warn func(error)) (Value, error) {
	var out Value
	err := s.guard(func() error {
		if err := s.vm.Set(sourceSlot, code); err != nil {
			return err
		}
		if err := s.vm.Set(thrownSlot, otto.UndefinedValue()); err != nil {
			return err
		}
		v, err := s.vm.Run(capturingRun)
		if err != nil {
			return s.thrown(wrapInterpretedError(err))
		}
		out = exportInterpretedResult(v, warn)
		return nil
	})
	return out, err
}

// thrown attaches the value recorded by capturingRun to a runtime error.
func (s *interpretedScope) thrown(err error) error {
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		return err
	}
	v, getErr := s.vm.Get(thrownSlot)
	if getErr != nil || v.IsUndefined() {
		return err
	}
	rerr.Value = exportInterpreted(v)
	if rerr.Name == "" && v.IsObject() {
		obj := v.Object()
		if name, _ := obj.Get("name"); name.IsString() {
			rerr.Name = name.String()
		}
		if msg, _ := obj.Get("message"); msg.IsString() {
			rerr.Message = msg.String()
		}
	}
	return err
}

func (s *interpretedScope) interrupt(cause error) {
	ch := s.vm.Interrupt
	var fire func()
	fire = func() {
		select {
		case ch <- fire:
		default:
		}
		panic(interruptSignal{cause: cause})
	}
	select {
	case ch <- fire:
	default:
	}
}

func (s *interpretedScope) release() {
	s.vm = nil
}

func (s *interpretedScope) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case interruptSignal:
				err = x.cause
			case error:
				err = x
			default:
				err = fmt.Errorf("interpreted: %v", r)
			}
		}
	}()
	return fn()
}

func wrapInterpretedError(err error) error {
	if err == nil {
		return nil
	}

	var oerr *otto.Error
	if errors.As(err, &oerr) {
		name, msg := splitErrorName(oerr.Error())
		return &RuntimeError{Name: name, Message: msg}
	}

	var list *parser.ErrorList
	if errors.As(err, &list) {
		return &RuntimeError{Name: "SyntaxError", Message: err.Error()}
	}
	var perr *parser.Error
	if errors.As(err, &perr) {
		return &RuntimeError{Name: "SyntaxError", Message: err.Error()}
	}

	// Thrown non-Error values arrive as plain errors carrying their string form.
	return &RuntimeError{Message: err.Error()}
}

// splitErrorName splits "TypeError: msg" into its parts.
func splitErrorName(s string) (string, string) {
	idx := strings.Index(s, ": ")
	if idx <= 0 {
		if strings.HasSuffix(s, "Error") && !strings.ContainsAny(s, " \t") {
			return s, ""
		}
		return "Error", s
	}
	name := s[:idx]
	if !strings.HasSuffix(name, "Error") || strings.ContainsAny(name, " \t") {
		return "Error", s
	}
	return name, s[idx+2:]
}
