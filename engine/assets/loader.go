package assets

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeSignature
	AssetTypeShader
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeSignature:
		return "signature"
	case AssetTypeShader:
		return "shader"
	}
	return "none"
}

// Asset is the result of a load. Exactly one of Signature and Code is set.
type Asset struct {
	Path      string
	Type      AssetType
	Signature *descriptor.SignatureFile
	Code      []byte
	Stage     metadata.ShaderStage
}

type Loader interface {
	Load(path string) (*Asset, error)
}

// SignatureLoader reads descriptor set signature files, TOML or YAML by
// extension.
type SignatureLoader struct{}

func (SignatureLoader) Load(path string) (*Asset, error) {
	format, err := descriptor.SignatureFormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := descriptor.ParseSignatureFile(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	file.Path = path
	return &Asset{Path: path, Type: AssetTypeSignature, Signature: file}, nil
}

const spirvMagic = 0x07230203

// ShaderLoader reads compiled SPIR-V. The stage comes from the file name as
// glslc names its output: shader.vert.spv, lighting.frag.spv, ...
type ShaderLoader struct{}

var stageSuffixes = map[string]metadata.ShaderStage{
	"vert": metadata.ShaderStageVertex,
	"frag": metadata.ShaderStageFragment,
	"geom": metadata.ShaderStageGeometry,
	"comp": metadata.ShaderStageCompute,
	"tesc": metadata.ShaderStageTessControl,
	"tese": metadata.ShaderStageTessEvaluation,
}

func ShaderStageFromPath(path string) (metadata.ShaderStage, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stage, ok := stageSuffixes[strings.TrimPrefix(filepath.Ext(base), ".")]
	if !ok {
		return 0, fmt.Errorf("cannot tell the shader stage of %s", path)
	}
	return stage, nil
}

func (ShaderLoader) Load(path string) (*Asset, error) {
	stage, err := ShaderStageFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 || binary.LittleEndian.Uint32(data) != spirvMagic {
		return nil, fmt.Errorf("%s is not a SPIR-V module", path)
	}
	return &Asset{Path: path, Type: AssetTypeShader, Code: data, Stage: stage}, nil
}

func determineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".yaml", ".yml":
		return AssetTypeSignature
	case ".spv":
		return AssetTypeShader
	default:
		return AssetTypeNone
	}
}
