// Package sensor supplies the voltage and current values reported in telemetry.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// Reading is one sensor sample.
type Reading struct {
	Voltage float64
	Current float64
}

// Sensor produces readings. relayOn is passed so scripts can model load.
type Sensor interface {
	Read(ctx context.Context, relayOn bool) (Reading, error)
}

// Static always returns the same reading.
type Static struct {
	Value Reading
}

// Read implements Sensor.
func (s Static) Read(ctx context.Context, relayOn bool) (Reading, error) {
	return s.Value, nil
}

// Script runs a Lua sensor script. The script must define a global function
// read(state) returning a table with optional voltage and current fields;
// missing fields take the fallback values.
//
//	local log = require("log")
//	function read(state)
//	  if state.relay_on then return { current = 3.5 } end
//	  return { current = 0 }
//	end
type Script struct {
	mu       sync.Mutex
	L        *lua.LState
	read     *lua.LFunction
	fallback Reading
}

// NewScript loads the script at path.
func NewScript(path string, fallback Reading) (*Script, error) {
	L := lua.NewState()
	L.PreloadModule("log", logLoader)

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load sensor script: %w", err)
	}

	fn, ok := L.GetGlobal("read").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, errors.New("sensor script does not define function read()")
	}

	log.Info().Str("path", path).Msg("Sensor script loaded")

	return &Script{
		L:        L,
		read:     fn,
		fallback: fallback,
	}, nil
}

// Read implements Sensor.
func (s *Script) Read(ctx context.Context, relayOn bool) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.L.SetContext(ctx)

	state := s.L.NewTable()
	s.L.SetField(state, "relay_on", lua.LBool(relayOn))

	if err := s.L.CallByParam(lua.P{Fn: s.read, NRet: 1, Protect: true}, state); err != nil {
		return s.fallback, fmt.Errorf("sensor script failed: %w", err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return s.fallback, fmt.Errorf("sensor script returned %s, want table", ret.Type())
	}

	reading := s.fallback
	if v, ok := tbl.RawGetString("voltage").(lua.LNumber); ok {
		reading.Voltage = float64(v)
	}
	if v, ok := tbl.RawGetString("current").(lua.LNumber); ok {
		reading.Current = float64(v)
	}
	return reading, nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
