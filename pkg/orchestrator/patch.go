package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openloom/openloom/pkg/core"
)

// PatchHookFilename is the conventional hook file name. The hook is
// looked up in the manifest's directory; a missing file is not an error.
const PatchHookFilename = "patches.star"

// StarlarkPatchHook executes a patches.star script after binding. The
// script must define an apply(ctx) function; ctx is a dict exposing
// "instances", "construct_handles" and "run_metadata".
type StarlarkPatchHook struct {
	path   string
	script []byte
	logger zerolog.Logger
}

// LoadPatchHook looks for the conventional hook beside the manifest.
// Returns (nil, false, nil) when the manifest has no directory or the
// hook file does not exist.
func LoadPatchHook(dir string, logger zerolog.Logger) (core.PatchHook, bool, error) {
	if dir == "" {
		return nil, false, nil
	}
	path := filepath.Join(dir, PatchHookFilename)
	script, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.NewPatchError(
			fmt.Sprintf("failed to read patch hook %s", path), err)
	}
	return &StarlarkPatchHook{
		path:   path,
		script: script,
		logger: logger.With().Str("component", "patch-hook").Logger(),
	}, true, nil
}

// Apply executes the script and calls its apply(ctx) function. Any
// script error aborts the run; patching is all-or-nothing.
func (h *StarlarkPatchHook) Apply(ctx context.Context, pc *core.PatchContext) error {
	if err := ctx.Err(); err != nil {
		return core.NewPatchError("patch hook cancelled", err)
	}

	thread := &starlark.Thread{
		Name: "patch-hook",
		Print: func(_ *starlark.Thread, msg string) {
			h.logger.Debug().Str("hook", h.path).Msg(msg)
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}

	globals, err := starlark.ExecFile(thread, h.path, h.script, predeclared)
	if err != nil {
		return core.NewPatchError(
			fmt.Sprintf("patch hook %s failed to execute", h.path), err)
	}

	applyFn, ok := globals["apply"]
	if !ok {
		return core.NewPatchError(
			fmt.Sprintf("patch hook %s does not define apply(ctx)", h.path), nil)
	}

	arg, err := patchContextValue(pc)
	if err != nil {
		return core.NewPatchError("failed to convert patch context", err)
	}

	if _, err := starlark.Call(thread, applyFn, starlark.Tuple{arg}, nil); err != nil {
		return core.NewPatchError(
			fmt.Sprintf("patch hook %s apply() failed", h.path), err)
	}

	h.logger.Info().Str("hook", h.path).Msg("Patch hook applied")
	return nil
}

// patchContextValue converts the patch context into the Starlark dict
// handed to apply().
func patchContextValue(pc *core.PatchContext) (starlark.Value, error) {
	instances := starlark.NewDict(len(pc.Instances))
	for _, name := range sortedInstanceNames(pc.Instances) {
		inst := pc.Instances[name]
		entry, err := instanceValue(inst)
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", name, err)
		}
		if err := instances.SetKey(starlark.String(name), entry); err != nil {
			return nil, err
		}
	}

	handles := starlark.NewDict(len(pc.ConstructHandles))
	for name, handle := range pc.ConstructHandles {
		entry := starlark.NewDict(2)
		if err := entry.SetKey(starlark.String("id"), starlark.String(handle.ID())); err != nil {
			return nil, err
		}
		if err := entry.SetKey(starlark.String("kind"), starlark.String(handle.Kind())); err != nil {
			return nil, err
		}
		if err := handles.SetKey(starlark.String(name), entry); err != nil {
			return nil, err
		}
	}

	metadata, err := toStarlarkValue(pc.RunMetadata)
	if err != nil {
		return nil, fmt.Errorf("run metadata: %w", err)
	}

	out := starlark.NewDict(3)
	if err := out.SetKey(starlark.String("instances"), instances); err != nil {
		return nil, err
	}
	if err := out.SetKey(starlark.String("construct_handles"), handles); err != nil {
		return nil, err
	}
	if err := out.SetKey(starlark.String("run_metadata"), metadata); err != nil {
		return nil, err
	}
	return out, nil
}

func instanceValue(inst *core.ComponentInstance) (starlark.Value, error) {
	config, err := toStarlarkValue(inst.Config.Values)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	capabilities, err := toStarlarkValue(map[string]interface{}(inst.Capabilities))
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}

	entry := starlark.NewDict(4)
	if err := entry.SetKey(starlark.String("name"), starlark.String(inst.Spec.Name)); err != nil {
		return nil, err
	}
	if err := entry.SetKey(starlark.String("type"), starlark.String(inst.Spec.Type)); err != nil {
		return nil, err
	}
	if err := entry.SetKey(starlark.String("config"), config); err != nil {
		return nil, err
	}
	if err := entry.SetKey(starlark.String("capabilities"), capabilities); err != nil {
		return nil, err
	}
	return entry, nil
}

// toStarlarkValue converts a Go value to its Starlark equivalent.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case core.UnresolvedToken:
		return starlark.String(val.Raw), nil
	case []interface{}:
		elems := make([]starlark.Value, 0, len(val))
		for _, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sv, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]string:
		dict := starlark.NewDict(len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := dict.SetKey(starlark.String(k), starlark.String(val[k])); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func sortedInstanceNames(instances map[string]*core.ComponentInstance) []string {
	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
