//go:build ignore

// build.go - crunch build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, crunch, crunch-server, test, release, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const module = "crunchcli"

var (
	distDir = "dist"

	// Commands under ./cmd that make up a release.
	executables = []string{"crunch", "crunch-server"}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if runtime.GOOS == "windows" {
		colorReset, colorRed, colorGreen, colorYellow, colorCyan = "", "", "", "", ""
	}

	printInfo(fmt.Sprintf("crunch build (%s/%s)", runtime.GOOS, runtime.GOARCH))
	startTime := time.Now()

	var err error
	switch *target {
	case "all":
		err = buildAll(*verbose, nil)
	case "crunch", "crunch-server":
		err = buildExecutable(*target, *verbose, nil)
	case "test":
		err = runTests(*verbose)
	case "release":
		err = buildRelease(*verbose)
	case "clean":
		err = os.RemoveAll(distDir)
	default:
		showHelp()
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func buildAll(verbose bool, env []string) error {
	for _, name := range executables {
		if err := buildExecutable(name, verbose, env); err != nil {
			return err
		}
	}
	return nil
}

func buildExecutable(name string, verbose bool, env []string) error {
	printInfo(fmt.Sprintf("Building %s...", name))

	exeName := name
	if goos := lookupEnv(env, "GOOS", runtime.GOOS); goos == "windows" {
		exeName += ".exe"
	}
	outputPath := filepath.Join(distDir, exeName)

	ldflags := fmt.Sprintf("-s -w -X %[1]s/pkg/contracts.BuildTime=%[2]s -X %[1]s/pkg/contracts.GitCommit=%[3]s",
		module, time.Now().UTC().Format(time.RFC3339), gitCommit())

	args := []string{"build"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "-ldflags", ldflags, "-o", outputPath, "./cmd/"+name)

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr
	if verbose {
		fmt.Printf("go %s\n", strings.Join(args, " "))
		cmd.Stdout = os.Stdout
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to build %s: %w", name, err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", exeName, float64(info.Size())/1024/1024))
	}
	return nil
}

func runTests(verbose bool) error {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go tests failed: %w", err)
	}
	printSuccess("All tests passed")
	return nil
}

// buildRelease cross-compiles static binaries into dist/<os>-<arch>.
func buildRelease(verbose bool) error {
	base := distDir
	defer func() { distDir = base }()

	for _, platform := range []string{"linux/amd64", "linux/arm64", "windows/amd64", "darwin/arm64"} {
		goos, goarch, _ := strings.Cut(platform, "/")
		distDir = filepath.Join(base, goos+"-"+goarch)
		if err := os.MkdirAll(distDir, 0o755); err != nil {
			return err
		}
		printInfo("Release " + platform)
		env := []string{"CGO_ENABLED=0", "GOOS=" + goos, "GOARCH=" + goarch}
		if err := buildAll(verbose, env); err != nil {
			return err
		}
	}
	return nil
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		printWarning("git commit unavailable")
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func lookupEnv(env []string, key, fallback string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return fallback
}

func printInfo(msg string)    { fmt.Printf("%s→ %s%s\n", colorCyan, msg, colorReset) }
func printSuccess(msg string) { fmt.Printf("%s✓ %s%s\n", colorGreen, msg, colorReset) }
func printError(msg string)   { fmt.Printf("%s✗ %s%s\n", colorRed, msg, colorReset) }
func printWarning(msg string) { fmt.Printf("%s! %s%s\n", colorYellow, msg, colorReset) }

func showHelp() {
	fmt.Println(`Usage: go run build.go [-target=TARGET] [-v]

Targets:
  all            build crunch and crunch-server into dist/ (default)
  crunch         build the CLI
  crunch-server  build the HTTP server
  test           run go test -race ./...
  release        cross-compile into dist/<os>-<arch>
  clean          remove dist/`)
}
