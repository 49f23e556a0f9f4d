package metadata

import (
	"fmt"
	"strings"
)

type ShaderStage uint32

const (
	ShaderStageVertex         ShaderStage = 0x00000001
	ShaderStageGeometry       ShaderStage = 0x00000002
	ShaderStageFragment       ShaderStage = 0x00000004
	ShaderStageCompute        ShaderStage = 0x00000008
	ShaderStageTessControl    ShaderStage = 0x00000010
	ShaderStageTessEvaluation ShaderStage = 0x00000020

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageGeometry | ShaderStageFragment |
		ShaderStageTessControl | ShaderStageTessEvaluation
	ShaderStageAll = ShaderStageAllGraphics | ShaderStageCompute
)

// Stage letters used by signature files: v f g c d (tessellation control)
// and h (tessellation evaluation).
var stageLetters = []struct {
	letter byte
	stage  ShaderStage
}{
	{'v', ShaderStageVertex},
	{'f', ShaderStageFragment},
	{'g', ShaderStageGeometry},
	{'c', ShaderStageCompute},
	{'d', ShaderStageTessControl},
	{'h', ShaderStageTessEvaluation},
}

// ParseShaderStages decodes a string of stage letters.
func ParseShaderStages(s string) (ShaderStage, error) {
	var out ShaderStage
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '|' || c == ',' {
			continue
		}
		found := false
		for _, sl := range stageLetters {
			if sl.letter == c {
				out |= sl.stage
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown shader stage letter %q", c)
		}
	}
	return out, nil
}

func (s ShaderStage) Letters() string {
	var sb strings.Builder
	for _, sl := range stageLetters {
		if s&sl.stage != 0 {
			sb.WriteByte(sl.letter)
		}
	}
	return sb.String()
}

func (s ShaderStage) String() string {
	if s == 0 {
		return "none"
	}
	return s.Letters()
}

// ReflectedBinding is one resource a shader stage declares.
type ReflectedBinding struct {
	Name     string
	HashName uint64
	Set      uint32
	Slot     uint32
	Type     DescriptorType
}

// ReflectedPushConstants is one push constant block a shader stage declares.
type ReflectedPushConstants struct {
	Name     string
	HashName uint64
	Size     uint32
}

// ShaderReflection is the already-parsed binding surface of one compiled
// shader stage.
type ShaderReflection interface {
	Stage() ShaderStage
	Bindings() []ReflectedBinding
	PushConstants() []ReflectedPushConstants
}

// ReflectionTable is an in-memory ShaderReflection, filled by a reflection
// parser or directly by tests and tools.
type ReflectionTable struct {
	stage         ShaderStage
	bindings      []ReflectedBinding
	pushConstants []ReflectedPushConstants
	hashFn        func(string) uint64
}

func NewReflectionTable(stage ShaderStage, hashFn func(string) uint64) *ReflectionTable {
	return &ReflectionTable{stage: stage, hashFn: hashFn}
}

func (r *ReflectionTable) AddBinding(name string, set, slot uint32, t DescriptorType) *ReflectionTable {
	r.bindings = append(r.bindings, ReflectedBinding{
		Name:     name,
		HashName: r.hashFn(name),
		Set:      set,
		Slot:     slot,
		Type:     t,
	})
	return r
}

func (r *ReflectionTable) AddPushConstants(name string, size uint32) *ReflectionTable {
	r.pushConstants = append(r.pushConstants, ReflectedPushConstants{
		Name:     name,
		HashName: r.hashFn(name),
		Size:     size,
	})
	return r
}

func (r *ReflectionTable) Stage() ShaderStage                      { return r.stage }
func (r *ReflectionTable) Bindings() []ReflectedBinding            { return r.bindings }
func (r *ReflectionTable) PushConstants() []ReflectedPushConstants { return r.pushConstants }
