//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Validates the signature file named by $VKBIND_SIGNATURE (default assets/signatures/main.toml).
func (Run) Validate() error {
	mg.Deps(Build.Shaders)
	signature := os.Getenv("VKBIND_SIGNATURE")
	if signature == "" {
		signature = "assets/signatures/main.toml"
	}
	fmt.Println("Validate signature file...")
	if _, err := executeCmd("go", withArgs("run", ".", "validate", signature), withStream()); err != nil {
		return err
	}
	return nil
}

// Prints the binding report for $VKBIND_SIGNATURE.
func (Run) Report() error {
	signature := os.Getenv("VKBIND_SIGNATURE")
	if signature == "" {
		signature = "assets/signatures/main.toml"
	}
	if _, err := executeCmd("go", withArgs("run", ".", "report", signature), withStream()); err != nil {
		return err
	}
	return nil
}
