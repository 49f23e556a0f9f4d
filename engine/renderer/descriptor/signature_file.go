package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"gopkg.in/yaml.v3"
)

type SignatureFormat uint8

const (
	SignatureFormatTOML SignatureFormat = iota
	SignatureFormatYAML
)

// SignatureFormatFromPath picks the format from the file extension.
func SignatureFormatFromPath(path string) (SignatureFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return SignatureFormatTOML, nil
	case ".yaml", ".yml":
		return SignatureFormatYAML, nil
	}
	return 0, fmt.Errorf("%w: unsupported signature file extension %q", core.ErrSignatureFile, filepath.Ext(path))
}

type signatureFileDoc struct {
	MainRootSignature string             `toml:"MainRootSignature" yaml:"MainRootSignature"`
	DescriptorSets    []descriptorSetDoc `toml:"DescriptorSet" yaml:"DescriptorSet"`
	LegacyBindings    []legacyBindingDoc `toml:"LegacyBinding" yaml:"LegacyBinding"`
	PushConstants     []pushConstantsDoc `toml:"PushConstants" yaml:"PushConstants"`
	RootSignatures    []rootSignatureDoc `toml:"RootSignature" yaml:"RootSignature"`
}

type descriptorSetDoc struct {
	Name        string           `toml:"name" yaml:"name"`
	Descriptors []descriptorsDoc `toml:"Descriptors" yaml:"Descriptors"`
}

type descriptorsDoc struct {
	Type  string `toml:"type" yaml:"type"`
	Slots string `toml:"slots" yaml:"slots"`
}

type legacyBindingDoc struct {
	Name      string              `toml:"name" yaml:"name"`
	Registers []legacyRegisterDoc `toml:"Register" yaml:"Register"`
}

type legacyRegisterDoc struct {
	// Register is the type letter followed by a range, e.g. "t0..8(buffer)".
	Register string `toml:"register" yaml:"register"`
	Set      string `toml:"set" yaml:"set"`
	Mapping  string `toml:"mapping" yaml:"mapping"`
}

type pushConstantsDoc struct {
	Name  string `toml:"name" yaml:"name"`
	Slots string `toml:"slots" yaml:"slots"`
}

type rootSignatureDoc struct {
	Name           string       `toml:"name" yaml:"name"`
	LegacyBindings string       `toml:"legacyBindings" yaml:"legacyBindings"`
	Sets           []rootSetDoc `toml:"Set" yaml:"Set"`
	PushConstants  []string     `toml:"PushConstants" yaml:"PushConstants"`
}

type rootSetDoc struct {
	Type          string  `toml:"type" yaml:"type"`
	Name          string  `toml:"name" yaml:"name"`
	UniformStream *uint32 `toml:"uniformStream" yaml:"uniformStream"`
}

// ParseSignatureFile decodes and validates a signature file. Unknown elements
// are rejected.
func ParseSignatureFile(r io.Reader, format SignatureFormat) (*SignatureFile, error) {
	var doc signatureFileDoc
	switch format {
	case SignatureFormatTOML:
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSignatureFile, err)
		}
	case SignatureFormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", core.ErrSignatureFile, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %d", core.ErrSignatureFile, format)
	}
	return buildSignatureFile(&doc)
}

func ParseSignatureBytes(data []byte, format SignatureFormat) (*SignatureFile, error) {
	return ParseSignatureFile(bytes.NewReader(data), format)
}

func buildSignatureFile(doc *signatureFileDoc) (*SignatureFile, error) {
	if doc.MainRootSignature == "" {
		return nil, fmt.Errorf("%w: main root signature not specified", core.ErrSignatureFile)
	}
	out := &SignatureFile{MainRootSignature: doc.MainRootSignature}

	for i := range doc.DescriptorSets {
		ds, err := readDescriptorSet(&doc.DescriptorSets[i])
		if err != nil {
			return nil, err
		}
		if out.DescriptorSet(ds.HashName) != nil {
			return nil, fmt.Errorf("%w: descriptor set (%s) declared twice", core.ErrSignatureFile, ds.Name)
		}
		out.DescriptorSets = append(out.DescriptorSets, ds)
	}
	for i := range doc.LegacyBindings {
		lb, err := readLegacyRegisterBinding(&doc.LegacyBindings[i], out)
		if err != nil {
			return nil, err
		}
		out.LegacyBindings = append(out.LegacyBindings, lb)
	}
	for i := range doc.PushConstants {
		pc, err := readPushConstRange(&doc.PushConstants[i])
		if err != nil {
			return nil, err
		}
		out.PushConstants = append(out.PushConstants, pc)
	}
	for i := range doc.RootSignatures {
		rs, err := readRootSignature(&doc.RootSignatures[i], out)
		if err != nil {
			return nil, err
		}
		out.RootSignatures = append(out.RootSignatures, rs)
	}

	if out.MainRoot() == nil {
		return nil, fmt.Errorf("%w: main root signature (%s) is not declared", core.ErrSignatureFile, doc.MainRootSignature)
	}
	return out, nil
}

type registerRange struct {
	begin, end uint32
	qualifier  RegisterQualifier
	rest       string
}

// parseRegisterRange reads "N", "N..M" or either followed by a qualifier.
// A single number N is the range [N, N+1); "N..M" excludes M.
func parseRegisterRange(input string) (registerRange, error) {
	if input == "" {
		return registerRange{}, nil
	}
	digits := func(s string) int {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		return i
	}
	n := digits(input)
	if n == 0 {
		return registerRange{}, fmt.Errorf("expected a number in range %q", input)
	}
	start, err := strconv.ParseUint(input[:n], 10, 32)
	if err != nil {
		return registerRange{}, err
	}
	rest := input[n:]
	end := start + 1
	if strings.HasPrefix(rest, "..") {
		rest = rest[2:]
		m := digits(rest)
		if m == 0 {
			return registerRange{}, fmt.Errorf("expected a range end in %q", input)
		}
		if end, err = strconv.ParseUint(rest[:m], 10, 32); err != nil {
			return registerRange{}, err
		}
		rest = rest[m:]
	}
	r := registerRange{begin: uint32(start), end: uint32(end), rest: rest}
	switch strings.ToLower(rest) {
	case "(buffer)":
		r.qualifier = RegisterQualifierBuffer
	case "(texture)":
		r.qualifier = RegisterQualifierTexture
	}
	return r, nil
}

func readDescriptorSet(doc *descriptorSetDoc) (*DescriptorSetSignature, error) {
	result := &DescriptorSetSignature{Name: doc.Name, HashName: core.HashName(doc.Name)}
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: descriptor set without a name", core.ErrSignatureFile)
	}

	for _, d := range doc.Descriptors {
		t, ok := metadata.ParseDescriptorType(d.Type)
		if !ok {
			return nil, fmt.Errorf("%w: descriptor type unrecognized (%s), while reading descriptor set (%s)", core.ErrSignatureFile, d.Type, doc.Name)
		}
		slots, err := parseRegisterRange(d.Slots)
		if err != nil || slots.end <= slots.begin {
			return nil, fmt.Errorf("%w: slots attribute not properly specified for descriptors in descriptor set (%s)", core.ErrSignatureFile, doc.Name)
		}
		if slots.end > containers.SlotMaskWidth {
			return nil, fmt.Errorf("%w: descriptor set (%s) has more than %d slots", core.ErrSignatureFile, doc.Name, containers.SlotMaskWidth)
		}
		for uint32(len(result.Slots)) < slots.end {
			result.Slots = append(result.Slots, metadata.DescriptorSlot{Type: metadata.DescriptorTypeUnknown})
		}
		for i := slots.begin; i < slots.end; i++ {
			if result.Slots[i].Type != metadata.DescriptorTypeUnknown {
				return nil, fmt.Errorf("%w: some descriptor slots overlap while reading descriptor set (%s)", core.ErrSignatureFile, doc.Name)
			}
			result.Slots[i] = metadata.Slot(t)
		}
	}

	for _, s := range result.Slots {
		if s.Type == metadata.DescriptorTypeUnknown {
			return nil, fmt.Errorf("%w: gap between descriptor slots while reading descriptor set (%s)", core.ErrSignatureFile, doc.Name)
		}
	}
	return result, nil
}

func readLegacyRegisterBinding(doc *legacyBindingDoc, file *SignatureFile) (*LegacyRegisterBindingDesc, error) {
	result := &LegacyRegisterBindingDesc{Name: doc.Name, HashName: core.HashName(doc.Name)}

	for _, e := range doc.Registers {
		if e.Register == "" {
			return nil, fmt.Errorf("%w: legacy register binding with empty name", core.ErrSignatureFile)
		}
		regType := registerTypeFromPrefix(e.Register[0])
		if regType == RegisterTypeUnknown {
			return nil, fmt.Errorf("%w: could not parse legacy register binding (%s)", core.ErrSignatureFile, e.Register)
		}
		legacy, err := parseRegisterRange(e.Register[1:])
		if err != nil || legacy.end <= legacy.begin {
			return nil, fmt.Errorf("%w: could not parse legacy register binding (%s)", core.ErrSignatureFile, e.Register)
		}
		mapped, err := parseRegisterRange(e.Mapping)
		if err != nil || mapped.end <= mapped.begin {
			return nil, fmt.Errorf("%w: could not parse target register mapping (%s)", core.ErrSignatureFile, e.Mapping)
		}
		if mapped.end-mapped.begin != legacy.end-legacy.begin {
			return nil, fmt.Errorf("%w: number of legacy registers and number of mapped registers don't match up (%s -> %s)", core.ErrSignatureFile, e.Register, e.Mapping)
		}
		if file.DescriptorSet(core.HashName(e.Set)) == nil {
			return nil, fmt.Errorf("%w: could not find referenced descriptor set (%s) in legacy binding (%s)", core.ErrSignatureFile, e.Set, doc.Name)
		}
		if err := result.AppendEntry(regType, legacy.qualifier, LegacyRegisterEntry{
			Begin:         legacy.begin,
			End:           legacy.end,
			TargetSetName: e.Set,
			TargetSetHash: core.HashName(e.Set),
			TargetBegin:   mapped.begin,
			TargetEnd:     mapped.end,
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// readPushConstRange reads "start..end" optionally followed by stage letters
// in parenthesis, e.g. "0..64(vf)". Without stages the range is visible to
// the vertex and fragment stages.
func readPushConstRange(doc *pushConstantsDoc) (PushConstantsRangeSignature, error) {
	result := PushConstantsRangeSignature{Name: doc.Name, HashName: core.HashName(doc.Name)}
	r, err := parseRegisterRange(doc.Slots)
	if err != nil || !strings.Contains(doc.Slots, "..") || r.end <= r.begin {
		return result, fmt.Errorf("%w: push constants (%s) range not properly specified (%s)", core.ErrSignatureFile, doc.Name, doc.Slots)
	}
	result.RangeStart = r.begin
	result.RangeSize = r.end - r.begin
	result.Stages = metadata.ShaderStageVertex | metadata.ShaderStageFragment
	if strings.HasPrefix(r.rest, "(") {
		letters := strings.TrimSuffix(strings.TrimPrefix(r.rest, "("), ")")
		stages, err := metadata.ParseShaderStages(letters)
		if err != nil {
			return result, fmt.Errorf("%w: push constants (%s): %v", core.ErrSignatureFile, doc.Name, err)
		}
		result.Stages = stages
	}
	return result, nil
}

func readRootSignature(doc *rootSignatureDoc, file *SignatureFile) (RootSignature, error) {
	result := RootSignature{
		Name:           doc.Name,
		HashName:       core.HashName(doc.Name),
		LegacyBindings: doc.LegacyBindings,
		PushConstants:  doc.PushConstants,
	}
	if doc.LegacyBindings != "" && file.LegacyBinding(core.HashName(doc.LegacyBindings)) == nil {
		return result, fmt.Errorf("%w: root signature (%s) references unknown legacy binding (%s)", core.ErrSignatureFile, doc.Name, doc.LegacyBindings)
	}
	for _, s := range doc.Sets {
		ref := DescriptorSetReference{
			Type:          parseDescriptorSetType(s.Type),
			UniformStream: NoUniformStream,
			Name:          s.Name,
			HashName:      core.HashName(s.Name),
		}
		if s.UniformStream != nil {
			ref.UniformStream = *s.UniformStream
		}
		if file.DescriptorSet(ref.HashName) == nil {
			return result, fmt.Errorf("%w: root signature (%s) references missing descriptor set (%s)", core.ErrSignatureFile, doc.Name, s.Name)
		}
		result.DescriptorSets = append(result.DescriptorSets, ref)
	}
	for _, p := range doc.PushConstants {
		if file.PushConstantsRange(core.HashName(p)) == nil {
			return result, fmt.Errorf("%w: root signature (%s) references missing push constant range (%s)", core.ErrSignatureFile, doc.Name, p)
		}
	}
	return result, nil
}
