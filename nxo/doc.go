// Package nxo converts ELF executables into the two executable formats the
// homebrew loader runs: NRO relocatable modules and NSO compressed modules.
//
// Extract pulls the text, rodata and data segments out of an ELF file along
// with a module identifier. EncodeNRO and EncodeNSO lay a Module out in their
// respective formats; they are separate operations sharing only the extracted
// Module and the layout writer. Only NRO images carry an asset section (icon,
// NACP, RomFS); the NSO loader does not interpret assets.
package nxo
