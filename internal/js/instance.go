package js

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Instance represents an isolated goja VM hosting one strategy module. All
// execution funnels through a dedicated goroutine because a goja runtime is
// not safe for concurrent use.
type Instance struct {
	module *Module
	rt     *goja.Runtime
	export *goja.Object
	queue  chan func(*goja.Runtime)
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewInstance creates an isolated runtime for the provided module.
func NewInstance(module *Module) (*Instance, error) {
	if module == nil {
		return nil, fmt.Errorf("strategy instance: module required")
	}
	rt := goja.New()
	export, err := runModule(rt, module.Program)
	if err != nil {
		return nil, fmt.Errorf("strategy instance: execute %s: %w", module.Filename, err)
	}
	instance := &Instance{
		module: module,
		rt:     rt,
		export: export,
		queue:  make(chan func(*goja.Runtime)),
		wg:     sync.WaitGroup{},
		mu:     sync.RWMutex{},
		closed: false,
		once:   sync.Once{},
	}
	instance.wg.Add(1)
	go instance.loop()
	return instance, nil
}

func (i *Instance) loop() {
	defer i.wg.Done()
	for cb := range i.queue {
		cb(i.rt)
	}
}

// Execute runs the provided function on the instance goroutine.
func (i *Instance) Execute(fn func(rt *goja.Runtime, exports *goja.Object) (goja.Value, error)) (goja.Value, error) {
	if i == nil {
		return nil, fmt.Errorf("strategy instance: nil receiver")
	}
	if fn == nil {
		return nil, fmt.Errorf("strategy instance: callback required")
	}

	wait := make(chan result, 1)

	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return nil, fmt.Errorf("strategy instance: closed")
	}
	i.queue <- func(rt *goja.Runtime) {
		val, err := fn(rt, i.export)
		wait <- result{value: val, err: err}
	}
	i.mu.RUnlock()

	outcome := <-wait
	return outcome.value, outcome.err
}

// Call invokes the named export with the provided arguments on the instance goroutine.
func (i *Instance) Call(function string, args ...any) (goja.Value, error) {
	if i == nil {
		return nil, fmt.Errorf("strategy instance: nil receiver")
	}
	fn := strings.TrimSpace(function)
	if fn == "" {
		return nil, fmt.Errorf("strategy instance: function name required")
	}

	return i.Execute(func(rt *goja.Runtime, exports *goja.Object) (goja.Value, error) {
		value := exports.Get(fn)
		if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
			return nil, ErrFunctionMissing
		}
		callable, ok := goja.AssertFunction(value)
		if !ok {
			return nil, fmt.Errorf("strategy instance: export %q not callable", fn)
		}
		params := make([]goja.Value, len(args))
		for idx, arg := range args {
			params[idx] = rt.ToValue(arg)
		}
		return callable(goja.Undefined(), params...)
	})
}

// Signal invokes the module's signal export against the column-oriented data
// object and converts the result into a float64 slice, mapping null and
// undefined entries to NaN.
func (i *Instance) Signal(data map[string]any) ([]float64, error) {
	value, err := i.Call(SignalExport, data)
	if err != nil {
		return nil, err
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, fmt.Errorf("signal returned no value")
	}

	exported := value.Export()
	items, ok := exported.([]any)
	if !ok {
		return nil, fmt.Errorf("signal must return an array, got %T", exported)
	}
	out := make([]float64, len(items))
	for idx, item := range items {
		parsed, convErr := toNumber(item)
		if convErr != nil {
			return nil, fmt.Errorf("signal[%d]: %w", idx, convErr)
		}
		out[idx] = parsed
	}
	return out, nil
}

func toNumber(item any) (float64, error) {
	switch v := item.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("non-numeric element %T", item)
	}
}

// Close stops the instance goroutine and releases resources.
func (i *Instance) Close() {
	if i == nil {
		return
	}
	i.once.Do(func() {
		i.mu.Lock()
		if i.closed {
			i.mu.Unlock()
			return
		}
		i.closed = true
		close(i.queue)
		i.mu.Unlock()
		i.wg.Wait()
	})
}

type result struct {
	value goja.Value
	err   error
}
