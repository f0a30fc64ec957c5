package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelsDir holds the ONNX models and, optionally, a per-arch runtime
// library such as models/onnxruntime_amd64.so.
const ModelsDir = "models"

// LibDir holds per-platform runtime libraries, e.g.
// lib/linux_amd64/libonnxruntime.so.
const LibDir = "lib"

var (
	ortOnce sync.Once
	ortErr  error
)

// InitRuntime loads the ONNX Runtime shared library and initializes the
// environment once per process. libPath overrides the search; when empty the
// bundled locations are tried and then the system default.
func InitRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath == "" {
			libPath = findRuntimeLib(searchRoots())
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = fmt.Errorf("segment: onnxruntime init (lib %q): %w", libPath, err)
		}
	})
	return ortErr
}

// runtimeLibNames returns the per-arch file name used under ModelsDir and
// the release names used under LibDir, newest versioned name first.
func runtimeLibNames() (arch string, release []string) {
	switch runtime.GOOS {
	case "darwin":
		return "onnxruntime_" + runtime.GOARCH + ".dylib", []string{"libonnxruntime.dylib"}
	case "windows":
		return "onnxruntime.dll", []string{"onnxruntime.dll"}
	default:
		return "onnxruntime_" + runtime.GOARCH + ".so", []string{"libonnxruntime.so.1.23.2", "libonnxruntime.so"}
	}
}

// searchRoots returns the working directory and the executable's directory.
func searchRoots() []string {
	roots := []string{}
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		if dir := filepath.Dir(exe); len(roots) == 0 || dir != roots[0] {
			roots = append(roots, dir)
		}
	}
	return roots
}

// findRuntimeLib returns the first runtime library found under ModelsDir of
// any root, then under LibDir/<GOOS_GOARCH> of any root, or "".
func findRuntimeLib(roots []string) string {
	arch, release := runtimeLibNames()
	platform := runtime.GOOS + "_" + runtime.GOARCH

	var candidates []string
	for _, root := range roots {
		if root != "" {
			candidates = append(candidates, filepath.Join(root, ModelsDir, arch))
		}
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		for _, name := range release {
			candidates = append(candidates, filepath.Join(root, LibDir, platform, name))
		}
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
