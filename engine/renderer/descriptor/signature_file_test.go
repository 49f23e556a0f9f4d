package descriptor

import (
	"errors"
	"strings"
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignatureTOML = `
MainRootSignature = "GraphicsMain"

[[DescriptorSet]]
name = "Sequencer"
Descriptors = [
  { type = "ConstantBuffer", slots = "0..3" },
  { type = "Texture", slots = "3..6" },
  { type = "Sampler", slots = "6" },
]

[[DescriptorSet]]
name = "Numeric"
Descriptors = [
  { type = "ConstantBuffer", slots = "0..4" },
  { type = "Texture", slots = "4..12" },
  { type = "Sampler", slots = "12..16" },
  { type = "UnorderedAccessBuffer", slots = "16..18" },
]

[[LegacyBinding]]
name = "GraphicsLegacy"

[[LegacyBinding.Register]]
register = "b0..4"
set = "Numeric"
mapping = "0..4"

[[LegacyBinding.Register]]
register = "t0..8"
set = "Numeric"
mapping = "4..12"

[[LegacyBinding.Register]]
register = "s0..4"
set = "Numeric"
mapping = "12..16"

[[LegacyBinding.Register]]
register = "t8..10(buffer)"
set = "Numeric"
mapping = "16..18"

[[PushConstants]]
name = "LocalTransform"
slots = "0..64"

[[PushConstants]]
name = "ComputeParams"
slots = "64..96(c)"

[[RootSignature]]
name = "GraphicsMain"
legacyBindings = "GraphicsLegacy"
PushConstants = ["LocalTransform"]

[[RootSignature.Set]]
type = "Adaptive"
name = "Sequencer"
uniformStream = 0

[[RootSignature.Set]]
type = "Numeric"
name = "Numeric"
`

const testSignatureYAML = `
MainRootSignature: ComputeMain
DescriptorSet:
  - name: Work
    Descriptors:
      - { type: UnorderedAccessBuffer, slots: "0..2" }
      - { type: UnorderedAccessTexture, slots: "2" }
PushConstants:
  - { name: Params, slots: "0..16(c)" }
RootSignature:
  - name: ComputeMain
    PushConstants: [Params]
    Set:
      - { type: Adaptive, name: Work, uniformStream: 0 }
`

func parseTOML(t *testing.T, src string) *SignatureFile {
	t.Helper()
	f, err := ParseSignatureBytes([]byte(src), SignatureFormatTOML)
	require.NoError(t, err)
	return f
}

func TestParseSignatureFileTOML(t *testing.T) {
	f := parseTOML(t, testSignatureTOML)

	require.Len(t, f.DescriptorSets, 2)
	seq := f.DescriptorSet(core.HashName("Sequencer"))
	require.NotNil(t, seq)
	require.Len(t, seq.Slots, 7)
	assert.Equal(t, metadata.DescriptorTypeConstantBuffer, seq.Slots[2].Type)
	assert.Equal(t, metadata.DescriptorTypeTexture, seq.Slots[3].Type)
	assert.Equal(t, metadata.DescriptorTypeSampler, seq.Slots[6].Type)

	root := f.MainRoot()
	require.NotNil(t, root)
	require.Len(t, root.DescriptorSets, 2)
	assert.Equal(t, DescriptorSetTypeAdaptive, root.DescriptorSets[0].Type)
	assert.Equal(t, uint32(0), root.DescriptorSets[0].UniformStream)
	assert.Equal(t, DescriptorSetTypeNumeric, root.DescriptorSets[1].Type)
	assert.Equal(t, NoUniformStream, root.DescriptorSets[1].UniformStream)

	legacy := f.LegacyBinding(core.HashName(root.LegacyBindings))
	require.NotNil(t, legacy)
	srv := legacy.Entries(RegisterTypeShaderResource, RegisterQualifierNone)
	require.Len(t, srv, 1)
	assert.Equal(t, LegacyRegisterEntry{Begin: 0, End: 8, TargetSetName: "Numeric", TargetSetHash: core.HashName("Numeric"), TargetBegin: 4, TargetEnd: 12}, srv[0])
	srvBuf := legacy.Entries(RegisterTypeShaderResource, RegisterQualifierBuffer)
	require.Len(t, srvBuf, 1)
	assert.Equal(t, uint32(16), srvBuf[0].TargetBegin)

	pc := f.PushConstantsRange(core.HashName("LocalTransform"))
	require.NotNil(t, pc)
	assert.Equal(t, metadata.ShaderStageVertex|metadata.ShaderStageFragment, pc.Stages)
	assert.Equal(t, uint32(64), pc.RangeSize)
	assert.Equal(t, metadata.ShaderStageCompute, f.PushConstantsRange(core.HashName("ComputeParams")).Stages)
}

func TestParseSignatureFileYAML(t *testing.T) {
	f, err := ParseSignatureBytes([]byte(testSignatureYAML), SignatureFormatYAML)
	require.NoError(t, err)
	work := f.DescriptorSet(core.HashName("Work"))
	require.NotNil(t, work)
	assert.Len(t, work.Slots, 3)
	assert.Equal(t, metadata.DescriptorTypeUnorderedAccessTexture, work.Slots[2].Type)
	assert.Equal(t, "ComputeMain", f.MainRoot().Name)
}

func TestParseSignatureFileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing main root", `[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0" }]`, "main root signature not specified"},
		{"unknown descriptor type", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Image", slots = "0" }]`, "descriptor type unrecognized"},
		{"empty slot range", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "3..3" }]`, "slots attribute not properly specified"},
		{"overlap", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0..3" }, { type = "Sampler", slots = "2" }]`, "overlap"},
		{"gap", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0" }, { type = "Sampler", slots = "2" }]`, "gap between descriptor slots"},
		{"mapping size", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0..4" }]
[[LegacyBinding]]
name = "L"
[[LegacyBinding.Register]]
register = "t0..4"
set = "A"
mapping = "0..2"`, "don't match up"},
		{"unknown legacy set", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0..4" }]
[[LegacyBinding]]
name = "L"
[[LegacyBinding.Register]]
register = "t0..4"
set = "B"
mapping = "0..4"`, "could not find referenced descriptor set"},
		{"register overlap", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0..8" }]
[[LegacyBinding]]
name = "L"
[[LegacyBinding.Register]]
register = "t0..4"
set = "A"
mapping = "0..4"
[[LegacyBinding.Register]]
register = "t3..5"
set = "A"
mapping = "4..6"`, "register overlap"},
		{"bad register letter", `MainRootSignature = "R"
[[DescriptorSet]]
name = "A"
Descriptors = [{ type = "Texture", slots = "0..8" }]
[[LegacyBinding]]
name = "L"
[[LegacyBinding.Register]]
register = "x0..4"
set = "A"
mapping = "0..4"`, "could not parse legacy register binding"},
		{"undeclared main root", `MainRootSignature = "R"`, "is not declared"},
		{"unexpected element", `MainRootSignature = "R"
[[Shader]]
name = "X"`, "invalid signature file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignatureBytes([]byte(tt.src), SignatureFormatTOML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrSignatureFile))
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestParseRegisterRange(t *testing.T) {
	r, err := parseRegisterRange("5")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), r.begin)
	assert.Equal(t, uint32(6), r.end)

	r, err = parseRegisterRange("2..9(Buffer)")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), r.begin)
	assert.Equal(t, uint32(9), r.end)
	assert.Equal(t, RegisterQualifierBuffer, r.qualifier)

	r, err = parseRegisterRange("0..4(texture)")
	require.NoError(t, err)
	assert.Equal(t, RegisterQualifierTexture, r.qualifier)

	_, err = parseRegisterRange("a..b")
	assert.Error(t, err)
}

func TestSignatureFormatFromPath(t *testing.T) {
	f, err := SignatureFormatFromPath("sigs/main.TOML")
	require.NoError(t, err)
	assert.Equal(t, SignatureFormatTOML, f)
	f, err = SignatureFormatFromPath("main.yml")
	require.NoError(t, err)
	assert.Equal(t, SignatureFormatYAML, f)
	_, err = SignatureFormatFromPath("main.json")
	assert.Error(t, err)
}
