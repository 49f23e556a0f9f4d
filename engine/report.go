package engine

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
)

var titleStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)

var registerTables = []struct {
	name      string
	register  descriptor.RegisterType
	qualifier descriptor.RegisterQualifier
}{
	{"b", descriptor.RegisterTypeConstantBuffer, descriptor.RegisterQualifierNone},
	{"s", descriptor.RegisterTypeSampler, descriptor.RegisterQualifierNone},
	{"t", descriptor.RegisterTypeShaderResource, descriptor.RegisterQualifierNone},
	{"t(buffer)", descriptor.RegisterTypeShaderResource, descriptor.RegisterQualifierBuffer},
	{"u", descriptor.RegisterTypeUnorderedAccess, descriptor.RegisterQualifierNone},
	{"u(buffer)", descriptor.RegisterTypeUnorderedAccess, descriptor.RegisterQualifierBuffer},
}

// WriteReport prints the selected root signature layout of the bound signature
// file and its legacy register mapping.
func (e *Engine) WriteReport(w io.Writer) error {
	bound := e.Signature()
	if bound == nil {
		return fmt.Errorf("%w: no signature file is bound", core.ErrSignatureFile)
	}
	file := bound.File
	rootName := e.RootSignatureName(file)
	layout := e.RootLayout()

	if _, err := fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (root signature %s, stages %s)", file.Path, rootName, bound.Stages))); err != nil {
		return err
	}
	if layout != nil {
		sets := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Set", "Name", "Type", "Stream", "Slot", "Descriptor")
		for i, ds := range layout.DescriptorSets {
			stream := "-"
			if ds.UniformStream != descriptor.NoUniformStream {
				stream = fmt.Sprint(ds.UniformStream)
			}
			for slot, s := range ds.Layout.Signature.Slots {
				sets.Row(fmt.Sprint(i), ds.Name, ds.Type.String(), stream, fmt.Sprint(slot), s.Type.String())
			}
		}
		if _, err := fmt.Fprintln(w, sets.String()); err != nil {
			return err
		}

		if len(layout.PushConstants) > 0 {
			pcs := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("Push constants", "Bytes", "Stages")
			for _, pc := range layout.PushConstants {
				pcs.Row(pc.Name, fmt.Sprintf("%d..%d", pc.Range.Offset, pc.Range.Offset+pc.Range.Size), pc.Range.Stages.String())
			}
			if _, err := fmt.Fprintln(w, pcs.String()); err != nil {
				return err
			}
		}
	}

	root := file.RootSignature(core.HashName(rootName))
	if root == nil || root.LegacyBindings == "" {
		return nil
	}
	legacy := file.LegacyBinding(core.HashName(root.LegacyBindings))
	if legacy == nil {
		return nil
	}
	registers := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Registers", "Set", "Slots")
	for _, rt := range registerTables {
		for _, entry := range legacy.Entries(rt.register, rt.qualifier) {
			registers.Row(fmt.Sprintf("%s%d..%d", rt.name, entry.Begin, entry.End), entry.TargetSetName, fmt.Sprintf("%d..%d", entry.TargetBegin, entry.TargetEnd))
		}
	}
	if _, err := fmt.Fprintln(w, titleStyle.Render("legacy bindings "+legacy.Name)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, registers.String())
	return err
}

// WriteMetrics prints the process-wide binding counters.
func WriteMetrics(w io.Writer) error {
	m := core.MetricsSnapshotNow()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Metric", "Count").
		Row("descriptor sets flushed", fmt.Sprint(m.DescriptorSetsFlushed)).
		Row("descriptor writes", fmt.Sprint(m.DescriptorWrites)).
		Row("descriptor copies", fmt.Sprint(m.DescriptorCopies)).
		Row("blank descriptor writes", fmt.Sprint(m.DummyWrites)).
		Row("pipelines built", fmt.Sprint(m.PipelinesBuilt)).
		Row("pipeline layouts built", fmt.Sprint(m.PipelineLayoutsBuilt)).
		Row("temporary buffer fallbacks", fmt.Sprint(m.TemporaryFallbacks)).
		Row("unmapped numeric bindings", fmt.Sprint(m.UnmappedBindings))
	_, err := fmt.Fprintln(w, t.String())
	return err
}
