package js

import (
	"math"
	"strings"
	"sync"
	"testing"
)

func newTestInstance(t *testing.T, source string) *Instance {
	t.Helper()
	module, err := Compile("test.js", []byte(source))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	instance, err := NewInstance(module)
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	t.Cleanup(instance.Close)
	return instance
}

func TestSignalMapsNullToNaN(t *testing.T) {
	instance := newTestInstance(t, `
module.exports = {
  signal: function (data) { return [null, 1, 0, undefined, true]; }
};
`)
	out, err := instance.Signal(map[string]any{"close": []float64{1}})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 values, got %d", len(out))
	}
	if !math.IsNaN(out[0]) || !math.IsNaN(out[3]) {
		t.Fatalf("expected NaN for null/undefined, got %v", out)
	}
	if out[1] != 1 || out[2] != 0 || out[4] != 1 {
		t.Fatalf("unexpected values: %v", out)
	}
}

func TestSignalRejectsNonArrayResult(t *testing.T) {
	instance := newTestInstance(t, `
module.exports = { signal: function (data) { return "nope"; } };
`)
	_, err := instance.Signal(map[string]any{"close": []float64{1}})
	if err == nil || !strings.Contains(err.Error(), "must return an array") {
		t.Fatalf("expected array error, got %v", err)
	}
}

func TestSignalRejectsNonNumericElements(t *testing.T) {
	instance := newTestInstance(t, `
module.exports = { signal: function (data) { return [1, "two"]; } };
`)
	_, err := instance.Signal(map[string]any{"close": []float64{1, 2}})
	if err == nil || !strings.Contains(err.Error(), "non-numeric") {
		t.Fatalf("expected non-numeric error, got %v", err)
	}
}

func TestSignalSeesColumnData(t *testing.T) {
	instance := newTestInstance(t, `
module.exports = {
  signal: function (data) {
    var out = [];
    for (var i = 0; i < data.close.length; i++) {
      out.push(data.close[i] * 2);
    }
    return out;
  }
};
`)
	out, err := instance.Signal(map[string]any{"close": []float64{1, 2, 3}})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if out[0] != 2 || out[1] != 4 || out[2] != 6 {
		t.Fatalf("expected doubled closes, got %v", out)
	}
}

func TestHelpersAvailableToModules(t *testing.T) {
	instance := newTestInstance(t, `
module.exports = {
  signal: function (data) {
    return [helpers.round(1.23456, 2), helpers.uuid().length];
  }
};
`)
	out, err := instance.Signal(map[string]any{"close": []float64{1}})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if out[0] != 1.23 {
		t.Fatalf("expected rounded value 1.23, got %v", out[0])
	}
	if out[1] != 36 {
		t.Fatalf("expected uuid length 36, got %v", out[1])
	}
}

func TestInstanceSerializesConcurrentCalls(t *testing.T) {
	instance := newTestInstance(t, `
var counter = 0;
module.exports = {
  signal: function (data) { counter++; return [counter]; }
};
`)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := instance.Signal(map[string]any{"close": []float64{1}}); err != nil {
				t.Errorf("signal: %v", err)
			}
		}()
	}
	wg.Wait()

	out, err := instance.Signal(map[string]any{"close": []float64{1}})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if out[0] != 17 {
		t.Fatalf("expected 17 serialized invocations, got %v", out[0])
	}
}

func TestExecuteAfterCloseFails(t *testing.T) {
	instance := newTestInstance(t, sampleModule)
	instance.Close()
	if _, err := instance.Signal(map[string]any{"close": []float64{1}}); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestCallMissingFunction(t *testing.T) {
	instance := newTestInstance(t, sampleModule)
	if _, err := instance.Call("rebalance"); err == nil {
		t.Fatalf("expected missing function error")
	}
}
