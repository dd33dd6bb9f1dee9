// Package amod defines the contract between the coordinator and profiling
// modules.
//
// A module is a Go plugin (or a statically linked table for built-ins)
// exporting a single variable:
//
//	var Symbols = amod.Symbols{
//		amod.SymTags:    []string{"cpu"},
//		amod.SymOptions: []string{"freq"},
//		"freq_help":     "Sampling frequency",
//		"freq_type":     amod.TypeUnsignedInt,
//		"freq_default":  amod.UInt(10),
//		amod.SymInit:    amod.InitFunc(initModule),
//		amod.SymProcess: amod.ProcessFunc(process),
//		amod.SymClose:   amod.CloseFunc(closeModule),
//	}
//
// The coordinator hands every module an ID at init time together with an
// API value. All API methods are keyed by that ID, never panic and report
// failures through a zero sentinel plus an (ErrorCode, message) pair
// retrievable with ErrorCode and ErrorMessage.
package amod
