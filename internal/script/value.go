package script

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a Go value into its Lua representation. Unhandled types
// degrade to their string form rather than failing a render.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case uint64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case time.Time:
		return lua.LString(t.Format(time.RFC3339))
	case []any:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(ToLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(lua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, val := range t {
			tbl.RawSetString(k, ToLua(L, val))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(t))
	}
}

// FromLua converts a Lua value into plain Go data. Tables with a sequence
// part become slices, everything else becomes a string-keyed map. Integral
// numbers come back as int so they serialize without decimal points.
func FromLua(v lua.LValue) any {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LString:
		return string(t)
	case lua.LNumber:
		if t == lua.LNumber(int64(t)) {
			return int(t)
		}
		return float64(t)
	case *lua.LTable:
		if n := t.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, FromLua(t.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		t.ForEach(func(k, val lua.LValue) {
			out[k.String()] = FromLua(val)
		})
		return out
	default:
		return nil
	}
}
