package sensor

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// logLoader exposes zerolog to sensor scripts as require("log").
func logLoader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(logFunc(zerolog.DebugLevel)))
	L.SetField(mod, "info", L.NewFunction(logFunc(zerolog.InfoLevel)))
	L.SetField(mod, "warn", L.NewFunction(logFunc(zerolog.WarnLevel)))
	L.SetField(mod, "error", L.NewFunction(logFunc(zerolog.ErrorLevel)))

	L.Push(mod)
	return 1
}

func logFunc(level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)

		event := log.WithLevel(level).Str("source", "sensor")
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(key, value lua.LValue) {
				event = event.Interface(lua.LVAsString(key), toGo(value))
			})
		}
		event.Msg(msg)

		return 0
	}
}

func toGo(v lua.LValue) any {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}
