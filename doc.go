// Package nxpack converts build artifacts into the container formats used by
// Switch homebrew: NRO and NSO executables, PFS0 archives, RomFS filesystem
// images and NACP metadata descriptors.
//
// Each Build function reads its inputs from disk, encodes the whole output in
// memory and writes it to w in a single call, so a failed build never writes
// a partial image:
//
//	f, err := os.Create("app.nro")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	err = nxpack.BuildNRO(ctx, "app.elf", f,
//	    nxpack.WithIcon("icon.jpg"),
//	    nxpack.WithNACP("app.toml"),
//	    nxpack.WithRomFS("romfs"),
//	)
//
// The format encoders are available directly in the [nxo], [romfs], [pfs0]
// and [nacp] subpackages for callers that already hold their inputs.
//
// Every error wraps one of the sentinel errors below; use errors.Is to tell
// them apart.
package nxpack
