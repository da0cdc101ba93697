package common

import "errors"

var ErrModulePaused = errors.New("common: module paused")

// Module names recognised by the pause guard.
const (
	ModuleReplay  = "replay"
	ModuleMigrate = "migrate"
	ModuleClaim   = "claim"
)

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static PauseView backed by configuration.
type Pauses map[string]bool

func (p Pauses) IsPaused(module string) bool {
	return p[module]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
