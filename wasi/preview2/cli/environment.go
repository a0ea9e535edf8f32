package cli

import "github.com/wippyai/wasi-hostbridge/wasi/preview2"

type EnvironmentHost struct {
	env  [][2]string
	args []string
}

func NewEnvironmentHost(w *preview2.WASI) *EnvironmentHost {
	return &EnvironmentHost{
		env:  w.EnvList(),
		args: w.Args(),
	}
}

func (h *EnvironmentHost) Namespace() string {
	return "wasi:cli/environment@0.2.0"
}

// Environment returns the variables sorted by name.
func (h *EnvironmentHost) Environment() [][2]string {
	return h.env
}

func (h *EnvironmentHost) Arguments() []string {
	return h.args
}

// Lookup returns the value of one variable.
func (h *EnvironmentHost) Lookup(name string) (string, bool) {
	for _, kv := range h.env {
		if kv[0] == name {
			return kv[1], true
		}
	}
	return "", false
}
