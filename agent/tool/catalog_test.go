package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

type fakeChatModel struct {
	responses []*schema.Message
	err       error
	idx       int
	inputs    [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

type stubTool struct {
	name   contractx.ToolName
	value  string
	err    error
	inputs []string
}

func (s *stubTool) Name() contractx.ToolName { return s.name }

func (s *stubTool) Invoke(ctx context.Context, input string, deps contractx.ToolContext) (string, error) {
	s.inputs = append(s.inputs, input)
	return s.value, s.err
}

func TestRegistryLookupAndInfos(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(NewCalculator(), &stubTool{name: contractx.ToolWebSearch}, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if _, ok := reg.Lookup(contractx.ToolCalculator); !ok {
		t.Fatal("calculator should be registered")
	}
	if _, ok := reg.Lookup(contractx.ToolRAG); ok {
		t.Fatal("rag should not be registered")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != contractx.ToolCalculator || names[1] != contractx.ToolWebSearch {
		t.Fatalf("Names() = %v", names)
	}

	infos := reg.Infos()
	if len(infos) != 2 || infos[0].Name != "calculator" || infos[1].Name != "web_search" {
		t.Fatalf("unexpected infos: %#v", infos)
	}
	if infos[0].Desc == "" || infos[0].ParamsOneOf == nil {
		t.Fatalf("calculator info is incomplete: %#v", infos[0])
	}

	desc := reg.Describe()
	if !strings.HasPrefix(desc, "- calculator: ") || !strings.Contains(desc, "\n- web_search: ") {
		t.Fatalf("Describe() = %q", desc)
	}
}

func TestRegistryRejectsDuplicatesAndUnknown(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(NewCalculator(), NewCalculator()); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	_, err := NewRegistry(&stubTool{name: "weather"})
	if !errors.Is(err, contractx.ErrUnknownTool) {
		t.Fatalf("NewRegistry() error = %v, want ErrUnknownTool", err)
	}
}
