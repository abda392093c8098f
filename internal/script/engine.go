package script

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	lua "github.com/yuin/gopher-lua"
)

// Engine is one Lua interpreter. Engines are not safe for concurrent use;
// every render worker owns exactly one.
type Engine struct {
	l       *lua.LState
	host    *Host
	filters map[string]*lua.LFunction
	funcs   map[string]*lua.LFunction
}

func (h *Host) spawn(registrations bool) (*Engine, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	e := &Engine{
		l:       L,
		host:    h,
		filters: map[string]*lua.LFunction{},
		funcs:   map[string]*lua.LFunction{},
	}
	if err := e.openLibs(); err != nil {
		L.Close()
		return nil, &InitError{Script: h.chunk, Err: err}
	}
	e.install(registrations)
	if err := e.run(); err != nil {
		L.Close()
		return nil, &InitError{Script: h.chunk, Err: err}
	}
	return e, nil
}

// openLibs loads the sandboxed library set: no io, no os.
func (e *Engine) openLibs() error {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := e.l.CallByParam(lua.P{
			Fn:      e.l.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open %s: %w", lib.name, err)
		}
	}
	// Base leaves file access helpers behind; take them away and route
	// print through the host diagnostics.
	for _, name := range []string{"dofile", "loadfile"} {
		e.l.SetGlobal(name, lua.LNil)
	}
	e.l.SetGlobal("print", e.l.NewFunction(e.luaPrint))
	return nil
}

func (e *Engine) install(registrations bool) {
	L := e.l

	site := L.NewTable()
	L.SetField(site, "data", L.NewFunction(e.luaData))
	L.SetField(site, "log", L.NewFunction(e.luaLog))
	if registrations {
		L.SetField(site, "register", L.NewFunction(e.luaRegister))
		L.SetField(site, "page", L.NewFunction(e.luaPage))
	} else {
		L.SetField(site, "register", L.NewFunction(luaNoop))
		L.SetField(site, "page", L.NewFunction(luaNoop))
	}
	L.SetGlobal("site", site)

	tern := L.NewTable()
	L.SetField(tern, "filter", L.NewFunction(e.luaFilter))
	L.SetField(tern, "func", L.NewFunction(e.luaFunc))
	L.SetGlobal("tern", tern)
}

func (e *Engine) run() error {
	fn, err := e.l.Load(strings.NewReader(e.host.source), e.host.chunk)
	if err != nil {
		return err
	}
	e.l.Push(fn)
	return e.l.PCall(0, lua.MultRet, nil)
}

// Close releases the interpreter.
func (e *Engine) Close() {
	if e != nil && e.l != nil {
		e.l.Close()
	}
}

// FuncNames lists registered filter and function names, sorted.
func (e *Engine) FuncNames() []string {
	if e == nil {
		return nil
	}
	seen := map[string]bool{}
	for name := range e.filters {
		seen[name] = true
	}
	for name := range e.funcs {
		seen[name] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Call invokes a registered script function with converted arguments.
func (e *Engine) Call(name string, args ...any) (any, error) {
	fn, ok := e.funcs[name]
	if !ok {
		fn, ok = e.filters[name]
	}
	if !ok {
		return nil, &RuntimeError{Fn: name, Err: fmt.Errorf("not registered")}
	}

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = ToLua(e.l, a)
	}
	if err := e.l.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
		return nil, &RuntimeError{Fn: name, Err: err}
	}
	ret := e.l.Get(-1)
	e.l.Pop(1)
	return FromLua(ret), nil
}

// TemplateFuncs exposes every registered script function as a template
// function dispatching into this engine.
func (e *Engine) TemplateFuncs() template.FuncMap {
	fm := template.FuncMap{}
	if e == nil {
		return fm
	}
	for _, name := range e.FuncNames() {
		n := name
		fm[n] = func(args ...any) (any, error) {
			return e.Call(n, args...)
		}
	}
	return fm
}

func luaNoop(L *lua.LState) int { return 0 }

func (e *Engine) luaData(L *lua.LState) int {
	path := L.CheckString(1)
	v, err := e.host.cb.DataValue(path)
	if err != nil {
		L.RaiseError("site.data(%q): %s", path, err)
		return 0
	}
	L.Push(ToLua(L, v))
	return 1
}

func (e *Engine) luaRegister(L *lua.LState) int {
	name := L.CheckString(1)
	value := FromLua(L.CheckAny(2))
	if err := e.host.cb.RegisterComputed(name, value); err != nil {
		L.RaiseError("site.register(%q): %s", name, err)
	}
	return 0
}

func (e *Engine) luaPage(L *lua.LState) int {
	path := L.CheckString(1)
	meta := map[string]any{}
	if L.GetTop() >= 2 {
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			if m, isMap := FromLua(tbl).(map[string]any); isMap {
				meta = m
			}
		}
	}
	body := L.OptString(3, "")
	if err := e.host.cb.RegisterPage(path, meta, body); err != nil {
		L.RaiseError("site.page(%q): %s", path, err)
	}
	return 0
}

func (e *Engine) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	e.host.cb.Diagnostic(level, msg)
	return 0
}

func (e *Engine) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	e.host.cb.Diagnostic("info", strings.Join(parts, "\t"))
	return 0
}

func (e *Engine) luaFilter(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	e.filters[name] = fn
	return 0
}

func (e *Engine) luaFunc(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	e.funcs[name] = fn
	return 0
}
