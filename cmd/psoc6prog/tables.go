package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tinkerator/psoc6prog/memmap"
	"github.com/tinkerator/psoc6prog/progress"
	"github.com/tinkerator/psoc6prog/psoc6"
)

// printLayout renders the PSoC6 memory region table, generalizing qftool's
// displayLayout (tinkerator-qftool/qftool.go) from a QuickFeather section
// list to the static region table spec.md §6 enumerates.
func printLayout(sink *progress.DefaultSink) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("PSoC6 Memory Regions")
	t.AppendHeader(table.Row{"Region", "Start", "End", "Length"})
	for _, r := range memmap.PSoC6 {
		t.AppendRow([]interface{}{
			r.Name,
			fmt.Sprintf("0x%08x", r.Start),
			fmt.Sprintf("0x%08x", r.End()),
			r.Length,
		})
	}
	t.AppendSeparator()
	t.AppendRow([]interface{}{"row size", "", "", memmap.RowSize})
	t.Render()
	_ = sink
}

// printInfo acquires the target's silicon identity and renders it, the
// -info counterpart to qftool's -layout/-check table output, generalized
// from a CRC-check result line to the SiliconID/protection-state table
// spec.md §4.H "Silicon info" describes.
func printInfo(sink *progress.DefaultSink, prog *psoc6.Programmer) {
	info, err := psoc6.SiliconID(prog.Session, prog.Family, prog.Cancel)
	if err != nil {
		sink.Log(fmt.Sprintf("SiliconID failed: %v", err))
		os.Exit(1)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Silicon Info")
	t.AppendHeader(table.Row{"Family ID", "Silicon ID", "Revision", "Protection"})
	t.AppendRow([]interface{}{
		fmt.Sprintf("0x%04x", info.FamilyID),
		fmt.Sprintf("0x%04x", info.SiliconID),
		fmt.Sprintf("0x%02x", info.RevisionID),
		psoc6.ProtectionName(info.ProtectionState),
	})
	t.Render()

	if psoc6.RefusesProgramming(info.ProtectionState) {
		sink.Log(fmt.Sprintf("warning: protection state %s refuses programming", psoc6.ProtectionName(info.ProtectionState)))
	}
}
