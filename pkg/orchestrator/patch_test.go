package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/openloom/openloom/pkg/core"
	"github.com/openloom/openloom/pkg/providers"
)

func writeHook(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, PatchHookFilename), []byte(script), 0o644); err != nil {
		t.Fatalf("failed to write hook: %v", err)
	}
	return dir
}

func testPatchContext() *core.PatchContext {
	inst := &core.ComponentInstance{
		Spec: core.ComponentSpec{Name: "data", Type: "storage.bucket"},
		Config: &core.EffectiveConfig{
			Component: "data",
			Type:      "storage.bucket",
			Values: map[string]interface{}{
				"storage": map[string]interface{}{"size": 50, "type": "standard"},
				"tags":    []interface{}{"pii", "internal"},
				"region":  core.UnresolvedToken{Key: "region", Raw: "${env:region}"},
			},
		},
		Capabilities: core.CapabilityMap{
			"storage:read": "loom://buckets/data",
		},
	}
	return &core.PatchContext{
		Instances: map[string]*core.ComponentInstance{"data": inst},
		ConstructHandles: map[string]core.ArtifactHandle{
			"data": providers.NewHandle("bucket-template", "data"),
		},
		RunMetadata: map[string]interface{}{
			"run_id":    "run-1",
			"framework": "baseline",
		},
	}
}

func TestLoadPatchHookMissing(t *testing.T) {
	hook, found, err := LoadPatchHook(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || hook != nil {
		t.Error("expected no hook in an empty directory")
	}

	hook, found, err = LoadPatchHook("", zerolog.Nop())
	if err != nil || found || hook != nil {
		t.Error("expected no hook for an empty directory path")
	}
}

func TestLoadPatchHookReadsFile(t *testing.T) {
	dir := writeHook(t, "def apply(ctx):\n    pass\n")
	hook, found, err := LoadPatchHook(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || hook == nil {
		t.Fatal("expected the hook to be found")
	}
	if err := hook.Apply(context.Background(), testPatchContext()); err != nil {
		t.Errorf("Apply failed: %v", err)
	}
}

func TestApplySeesInstanceState(t *testing.T) {
	script := `def apply(ctx):
    inst = ctx["instances"]["data"]
    if inst["type"] != "storage.bucket":
        fail("wrong type: " + inst["type"])
    if inst["config"]["storage"]["size"] != 50:
        fail("wrong size")
    if inst["config"]["tags"][1] != "internal":
        fail("wrong tags")
    if inst["config"]["region"] != "${env:region}":
        fail("unresolved token not preserved")
    if inst["capabilities"]["storage:read"] != "loom://buckets/data":
        fail("wrong capability")
    handle = ctx["construct_handles"]["data"]
    if handle["kind"] != "bucket-template":
        fail("wrong handle kind")
    if ctx["run_metadata"]["run_id"] != "run-1":
        fail("wrong run id")
`
	dir := writeHook(t, script)
	hook, _, err := LoadPatchHook(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := hook.Apply(context.Background(), testPatchContext()); err != nil {
		t.Errorf("Apply failed: %v", err)
	}
}

func TestApplyRequiresApplyFunction(t *testing.T) {
	dir := writeHook(t, "x = 1\n")
	hook, _, err := LoadPatchHook(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	err = hook.Apply(context.Background(), testPatchContext())
	if !core.HasCode(err, core.ErrCodePatchFailed) {
		t.Fatalf("expected PATCH_FAILED, got %v", err)
	}
}

func TestApplyReportsSyntaxErrors(t *testing.T) {
	dir := writeHook(t, "def apply(ctx:\n")
	hook, _, err := LoadPatchHook(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	err = hook.Apply(context.Background(), testPatchContext())
	if !core.HasCode(err, core.ErrCodePatchFailed) {
		t.Fatalf("expected PATCH_FAILED, got %v", err)
	}
}

func TestApplyHonorsCancelledContext(t *testing.T) {
	dir := writeHook(t, "def apply(ctx):\n    pass\n")
	hook, _, err := LoadPatchHook(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hook.Apply(ctx, testPatchContext()); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}

func TestToStarlarkValueConversions(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"nil", nil, "None"},
		{"bool", true, "True"},
		{"int", 42, "42"},
		{"int64", int64(1 << 40), "1099511627776"},
		{"float", 2.5, "2.5"},
		{"string", "hello", `"hello"`},
		{"token", core.UnresolvedToken{Key: "zone", Raw: "${env:zone}"}, `"${env:zone}"`},
		{"list", []interface{}{1, "a"}, `[1, "a"]`},
		{"map", map[string]interface{}{"b": 2, "a": 1}, `{"a": 1, "b": 2}`},
		{"string map", map[string]string{"k": "v"}, `{"k": "v"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := toStarlarkValue(tc.input)
			if err != nil {
				t.Fatalf("conversion failed: %v", err)
			}
			if got.String() != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got.String())
			}
		})
	}
}

func TestToStarlarkValueRejectsUnknownTypes(t *testing.T) {
	if _, err := toStarlarkValue(struct{}{}); err == nil {
		t.Error("expected an error for an unsupported type")
	}
}

func TestPatchContextValueShape(t *testing.T) {
	v, err := patchContextValue(testPatchContext())
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		t.Fatalf("expected a dict, got %T", v)
	}
	for _, key := range []string{"instances", "construct_handles", "run_metadata"} {
		if _, found, _ := dict.Get(starlark.String(key)); !found {
			t.Errorf("expected key %s in patch context", key)
		}
	}
}
