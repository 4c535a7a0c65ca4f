package gantry

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/isa/amd64"
	"github.com/gantry-go/gantry/internal/isa/riscv"
	"github.com/gantry-go/gantry/internal/settings"
)

// LookupISA returns the named target configured with flags. The known names
// are "amd64" (alias "x86_64") and "riscv".
func LookupISA(name string, flags settings.Flags) (isa.TargetISA, error) {
	switch name {
	case "amd64", "x86_64":
		return amd64.New(flags), nil
	case "riscv":
		return riscv.New(flags), nil
	}
	return nil, fmt.Errorf("gantry: unknown target isa %q", name)
}
