//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the vkbind binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "vkbind"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles every GLSL source under shaders/ to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

var shaderStages = []string{".vert", ".frag", ".geom", ".comp", ".tesc", ".tese"}

// buildShaders writes shaders/name.stage.spv next to each shaders/name.stage.
func buildShaders() error {
	entries, err := os.ReadDir("shaders")
	if os.IsNotExist(err) {
		fmt.Println("no shaders directory, nothing to compile")
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isShaderSource(name) {
			continue
		}
		if _, err := executeCmd("glslc", withArgs(name, "-o", name+".spv"), withDir("shaders"), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func isShaderSource(name string) bool {
	for _, ext := range shaderStages {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
