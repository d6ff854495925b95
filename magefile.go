//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles both executables into ./bin
func Build() error {
	mg.Deps(BuildDecoder, BuildInspect)
	fmt.Println("Compilation finished")
	return nil
}

func BuildDecoder() error {
	fmt.Println("Building decoder executable...")
	return goCommand("build", "-o", "./bin/decoder", "./decoder")
}

func BuildInspect() error {
	fmt.Println("Building inspect executable...")
	return goCommand("build", "-o", "./bin/inspect", "./inspect")
}

// Test runs the unit tests. The HDF5 writer needs the same cgo flags as the build.
func Test() error {
	fmt.Println("Running tests...")
	return goCommand("test", "./...")
}

// goCommand runs the go tool with cgo enabled, forwarding the HDF5 include
// and library paths from the environment.
func goCommand(args ...string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
