package out_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	recipeadapter "gocpl/internal/modules/recipe/adapter/out"
	"gocpl/internal/modules/recipe/domain"
	"gocpl/internal/modules/recipe/service"
)

const calibrationPlugin = `
recipes:
  - name: flatcombine
    version: "1.0"
    parameters:
      - name: stub.flatcombine.method
        alias: method
        type: enum
        kind: string
        default: median
        choices: [median, mean]
    inputs:
      - {tag: FLAT, min: 1}
    outputs: [MASTER_FLAT]
    behavior: combine
  - name: crasher
    behavior: crash
  - name: sleeper
    behavior: sleep
    sleep: 30s
  - name: rejecter
    behavior: fail
    status: 2
    message: no usable frames
`

const biasPlugin = `
recipes:
  - name: biascombine
    inputs:
      - {tag: BIAS, min: 1}
    outputs: [MASTER_BIAS]
`

func TestGRPCLoaderIntegrationStubWorker(t *testing.T) {
	worker := buildStubWorker(t)

	pluginDir := t.TempDir()
	writeFile(t, filepath.Join(pluginDir, "libcalib.so"), calibrationPlugin)
	writeFile(t, filepath.Join(pluginDir, "libbroken.so"), "\x7fELF\x02\x01 truncated")
	writeFile(t, filepath.Join(pluginDir, "sub", "libbias.so"), biasPlugin)

	loader := recipeadapter.NewGRPCLoader(worker, recipeadapter.WithStartTimeout(20*time.Second))
	registry := service.NewRegistry(loader)
	bridge := service.NewBridge(service.BridgeDeps{
		Collector: service.NewCollector(recipeadapter.NewFITSHeaderReader(), nil),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	catalog, err := registry.Discover(ctx, []string{pluginDir})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got := catalog.Names(); len(got) != 5 {
		t.Fatalf("expected 5 recipes, got %v", got)
	}
	if len(catalog.Warnings) != 1 || filepath.Base(catalog.Warnings[0].Plugin) != "libbroken.so" {
		t.Fatalf("expected one warning for the broken plugin, got %v", catalog.Warnings)
	}

	flats := domain.NewFrameSet()
	dataDir := t.TempDir()
	for _, name := range []string{"flat_a.fits", "flat_b.fits", "flat_c.fits"} {
		path := filepath.Join(dataDir, name)
		writeFile(t, path, "raw")
		frame, err := domain.NewFrame(path, "FLAT", domain.FrameGroupRaw)
		if err != nil {
			t.Fatalf("frame: %v", err)
		}
		flats.Append(frame)
	}

	t.Run("flatcombine", func(t *testing.T) {
		for _, method := range []string{"median", "mean"} {
			h, err := registry.Open(ctx, "flatcombine")
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if err := h.SetString("method", method); err != nil {
				t.Fatalf("set method: %v", err)
			}
			outDir := t.TempDir()
			result, err := bridge.Invoke(ctx, h, flats, service.InvokeOptions{OutputDir: outDir})
			if err != nil {
				t.Fatalf("%s: invoke: %v", method, err)
			}
			if result.Outputs.Len() != 1 || result.Outputs.At(0).Tag() != "MASTER_FLAT" {
				t.Fatalf("%s: unexpected outputs %v", method, result.Outputs.Frames())
			}
			if dir := filepath.Dir(result.Outputs.At(0).Path()); dir != outDir {
				t.Fatalf("%s: product written to %s, want %s", method, dir, outDir)
			}
			if got := result.Products[0].Header.Map()["METHOD"]; got != method {
				t.Fatalf("%s: product header METHOD=%q", method, got)
			}
			if got := result.Keywords["ESO PRO REC1 PARAM1 VALUE"]; got != method {
				t.Fatalf("%s: echoed keyword %q", method, got)
			}
			if err := h.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		}
	})

	t.Run("bogus method", func(t *testing.T) {
		h, err := registry.Open(ctx, "flatcombine")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer h.Close()
		if err := h.SetString("method", "bogus"); err != nil {
			t.Fatalf("set method: %v", err)
		}
		outDir := t.TempDir()
		result, err := bridge.Invoke(ctx, h, flats, service.InvokeOptions{OutputDir: outDir})
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Parameter != "stub.flatcombine.method" {
			t.Fatalf("expected validation error on method, got %v", err)
		}
		if result != nil {
			t.Fatalf("expected no result, got %+v", result)
		}
		entries, _ := os.ReadDir(outDir)
		if len(entries) != 0 {
			t.Fatalf("expected no products, found %d", len(entries))
		}
	})

	t.Run("execution failure", func(t *testing.T) {
		h, err := registry.Open(ctx, "rejecter")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer h.Close()
		result, err := bridge.Invoke(ctx, h, domain.NewFrameSet(), service.InvokeOptions{OutputDir: t.TempDir()})
		var execErr *domain.ExecutionError
		if !errors.As(err, &execErr) || execErr.Status != 2 {
			t.Fatalf("expected execution error with status 2, got %v", err)
		}
		if result == nil || result.Status != 2 {
			t.Fatalf("expected result next to the error, got %+v", result)
		}
	})

	t.Run("crash", func(t *testing.T) {
		h, err := registry.Open(ctx, "crasher")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer h.Close()
		_, err = bridge.Invoke(ctx, h, domain.NewFrameSet(), service.InvokeOptions{OutputDir: t.TempDir()})
		if !errors.Is(err, domain.ErrPlugin) {
			t.Fatalf("expected plugin error, got %v", err)
		}
		_, err = bridge.Invoke(ctx, h, domain.NewFrameSet(), service.InvokeOptions{OutputDir: t.TempDir()})
		if !errors.Is(err, domain.ErrHandleUnusable) {
			t.Fatalf("expected handle unusable, got %v", err)
		}

		// The host survives; other recipes still run.
		other, err := registry.Open(ctx, "biascombine")
		if err != nil {
			t.Fatalf("open after crash: %v", err)
		}
		defer other.Close()
		biasPath := filepath.Join(dataDir, "bias.fits")
		writeFile(t, biasPath, "raw")
		bias, _ := domain.NewFrame(biasPath, "BIAS", domain.FrameGroupRaw)
		if _, err := bridge.Invoke(ctx, other, domain.NewFrameSet(bias), service.InvokeOptions{OutputDir: t.TempDir()}); err != nil {
			t.Fatalf("invoke after crash: %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		h, err := registry.Open(ctx, "sleeper")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer h.Close()
		started := time.Now()
		_, err = bridge.Invoke(ctx, h, domain.NewFrameSet(), service.InvokeOptions{OutputDir: t.TempDir(), Timeout: 2 * time.Second})
		if !errors.Is(err, domain.ErrInvocationTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}
		if elapsed := time.Since(started); elapsed > 25*time.Second {
			t.Fatalf("worker not killed on timeout, took %s", elapsed)
		}
	})
}

func buildStubWorker(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "stub-worker")
	cmd := exec.Command("go", "build", "-o", binPath, "./plugins/stub")
	cmd.Dir = repositoryRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build stub worker: %v\n%s", err, string(out))
	}
	return binPath
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func repositoryRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../../../../../"))
}
