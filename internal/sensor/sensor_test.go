package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensor.lua")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStatic(t *testing.T) {
	s := Static{Value: Reading{Voltage: 220, Current: 3.5}}
	got, err := s.Read(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Voltage != 220 || got.Current != 3.5 {
		t.Errorf("got %+v", got)
	}
}

func TestScript_Read(t *testing.T) {
	path := writeScript(t, `
local log = require("log")
function read(state)
  log.debug("reading", { relay_on = state.relay_on })
  if state.relay_on then
    return { voltage = 231.5, current = 4.2 }
  end
  return { current = 0 }
end
`)
	s, err := NewScript(path, Reading{Voltage: 220, Current: 3.5})
	if err != nil {
		t.Fatalf("NewScript: %v", err)
	}
	defer s.Close()

	on, err := s.Read(context.Background(), true)
	if err != nil {
		t.Fatalf("Read(on): %v", err)
	}
	if on.Voltage != 231.5 || on.Current != 4.2 {
		t.Errorf("on reading = %+v", on)
	}

	off, err := s.Read(context.Background(), false)
	if err != nil {
		t.Fatalf("Read(off): %v", err)
	}
	if off.Voltage != 220 || off.Current != 0 {
		t.Errorf("off reading = %+v, want fallback voltage and zero current", off)
	}
}

func TestScript_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		loadErr bool
	}{
		{"no read function", `x = 1`, true},
		{"syntax error", `function read(`, true},
		{"runtime error", `function read() error("boom") end`, false},
		{"non-table return", `function read() return 5 end`, false},
	}

	fallback := Reading{Voltage: 1, Current: 2}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScript(writeScript(t, tt.src), fallback)
			if tt.loadErr {
				if err == nil {
					s.Close()
					t.Fatal("expected load error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewScript: %v", err)
			}
			defer s.Close()

			got, err := s.Read(context.Background(), false)
			if err == nil {
				t.Fatal("expected read error")
			}
			if got != fallback {
				t.Errorf("got %+v, want fallback", got)
			}
		})
	}
}
