package cplnative

import (
	"debug/elf"
	"fmt"
)

// EntryPoint is the symbol every CPL plugin library exports.
const EntryPoint = "cpl_plugin_get_info"

// CheckELF reports whether path is a shared object exporting EntryPoint.
// It reads the file only; nothing is loaded.
func CheckELF(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("not an ELF shared object: %w", err)
	}
	defer f.Close()
	if f.Type != elf.ET_DYN {
		return fmt.Errorf("%s is %s, not a shared object", path, f.Type)
	}
	symbols, err := f.DynamicSymbols()
	if err != nil {
		return fmt.Errorf("read dynamic symbols of %s: %w", path, err)
	}
	for _, sym := range symbols {
		if sym.Name == EntryPoint && sym.Section != elf.SHN_UNDEF {
			return nil
		}
	}
	return fmt.Errorf("%s does not export %s", path, EntryPoint)
}
