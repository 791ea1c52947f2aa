// Package js compiles and executes JavaScript strategy modules in sandboxed
// goja runtimes. A module exports a callable "signal" plus optional metadata:
//
//	module.exports = {
//	  metadata: { name: "...", description: "...", version: "..." },
//	  signal: function (data) { return [...]; }
//	};
package js

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignalExport is the export name every strategy module must provide.
const SignalExport = "signal"

// ModuleMetadata is the optional advisory metadata a module may export.
type ModuleMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Module encapsulates a compiled strategy program and its declared metadata.
type Module struct {
	Filename     string
	Source       []byte
	Program      *goja.Program
	Metadata     ModuleMetadata
	FunctionName string
}

// Compile parses and validates strategy source. The module is evaluated once
// in a throwaway runtime to verify the signal export and capture metadata.
func Compile(filename string, source []byte) (*Module, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		name = "strategy.js"
	}
	program, err := goja.Compile(name, string(source), true)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	rt := goja.New()
	exports, err := runModule(rt, program)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", name, err)
	}

	signalValue := exports.Get(SignalExport)
	if signalValue == nil || goja.IsUndefined(signalValue) || goja.IsNull(signalValue) {
		return nil, fmt.Errorf("%s: missing %q export", name, SignalExport)
	}
	callable, ok := goja.AssertFunction(signalValue)
	if !ok || callable == nil {
		return nil, fmt.Errorf("%s: export %q not callable", name, SignalExport)
	}

	module := &Module{
		Filename:     name,
		Source:       append([]byte(nil), source...),
		Program:      program,
		Metadata:     ModuleMetadata{},
		FunctionName: SignalExport,
	}

	if raw := exports.Get("metadata"); raw != nil && !goja.IsUndefined(raw) && !goja.IsNull(raw) {
		var meta ModuleMetadata
		if exportErr := rt.ExportTo(raw, &meta); exportErr == nil {
			meta.Name = strings.TrimSpace(meta.Name)
			meta.Description = strings.TrimSpace(meta.Description)
			meta.Version = strings.TrimSpace(meta.Version)
			module.Metadata = meta
		}
	}
	if fnObj := signalValue.ToObject(rt); fnObj != nil {
		if fnName := fnObj.Get("name"); fnName != nil && !goja.IsUndefined(fnName) {
			if n := strings.TrimSpace(fnName.String()); n != "" {
				module.FunctionName = n
			}
		}
	}

	return module, nil
}

func runModule(rt *goja.Runtime, program *goja.Program) (*goja.Object, error) {
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("module", module); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("console", buildConsole(rt)); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("helpers", buildHelpers(rt)); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}

	if _, err := rt.RunProgram(program); err != nil {
		return nil, fmt.Errorf("module run: %w", err)
	}

	value := module.Get("exports")
	object := value.ToObject(rt)
	if object == nil {
		return nil, fmt.Errorf("module exports must be an object")
	}
	return object, nil
}

func buildConsole(rt *goja.Runtime) *goja.Object {
	console := rt.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = console.Set("log", noop)
	_ = console.Set("error", noop)
	_ = console.Set("warn", noop)
	_ = console.Set("info", noop)
	return console
}

// buildHelpers exposes a small host utility surface to strategy code.
func buildHelpers(rt *goja.Runtime) *goja.Object {
	helpers := rt.NewObject()
	_ = helpers.Set("uuid", func() string {
		return uuid.NewString()
	})
	_ = helpers.Set("round", func(value float64, places int) float64 {
		rounded, _ := decimal.NewFromFloat(value).Round(int32(places)).Float64()
		return rounded
	})
	return helpers
}
