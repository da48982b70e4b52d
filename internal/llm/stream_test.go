package llm

import (
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

func TestToolCallAccumulator_AssemblesFragments(t *testing.T) {
	var acc toolCallAccumulator
	acc.add(ToolCallDelta{Index: 1, ID: "b", Name: "second", Arguments: `{"n":`})
	acc.add(ToolCallDelta{Index: 0, ID: "a", Name: "first", Arguments: `{"q":"e`})
	acc.add(ToolCallDelta{Index: 0, Arguments: `cs"}`})
	acc.add(ToolCallDelta{Index: 1, Arguments: `2}`})

	calls := acc.result()
	if len(calls) != 2 {
		t.Fatalf("want 2 calls, got %d", len(calls))
	}
	if calls[0].ID != "a" || calls[0].Function.Name != "first" || calls[0].Function.Arguments["q"] != "ecs" {
		t.Fatalf("unexpected first call: %+v", calls[0])
	}
	if calls[1].Function.Arguments["n"] != float64(2) {
		t.Fatalf("unexpected second call: %+v", calls[1])
	}
}

func TestToolCallAccumulator_BrokenJSONYieldsEmptyArgs(t *testing.T) {
	var acc toolCallAccumulator
	acc.add(ToolCallDelta{Index: 0, Name: "x", Arguments: `{"unterminated`})
	calls := acc.result()
	if len(calls) != 1 || calls[0].Function.Arguments == nil || len(calls[0].Function.Arguments) != 0 {
		t.Fatalf("unexpected: %+v", calls)
	}
}

func TestSingleShotStream(t *testing.T) {
	s := NewSingleShotStream(Response{
		Content:   "hello",
		ToolCalls: []ToolCall{{ID: "1", Function: FunctionCall{Name: "x", Arguments: map[string]interface{}{"a": 1}}}},
	})
	d, err := s.Recv()
	if err != nil || d.Content != "hello" || d.ToolCall != nil {
		t.Fatalf("unexpected first delta: %+v %v", d, err)
	}
	d, err = s.Recv()
	if err != nil || d.ToolCall == nil || d.ToolCall.Name != "x" {
		t.Fatalf("unexpected tool delta: %+v %v", d, err)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestToBedrockMessages_MergesRolesAndSplitsSystem(t *testing.T) {
	system, msgs := toBedrockMessages([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "status?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "t1", Function: FunctionCall{Name: "a"}},
			{ID: "t2", Function: FunctionCall{Name: "b"}},
		}},
		{Role: RoleTool, ToolCallID: "t1", Content: "ok"},
		{Role: RoleTool, ToolCallID: "t2", Content: "ok"},
	})
	if len(system) != 1 {
		t.Fatalf("want 1 system block, got %d", len(system))
	}
	if len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %d", len(msgs))
	}
	if msgs[2].Role != types.ConversationRoleUser || len(msgs[2].Content) != 2 {
		t.Fatalf("tool results not merged: %+v", msgs[2])
	}
	if _, ok := msgs[1].Content[0].(*types.ContentBlockMemberToolUse); !ok {
		t.Fatalf("want tool use block, got %T", msgs[1].Content[0])
	}
}

type fakeConverseEvents struct {
	ch  chan types.ConverseStreamOutput
	err error
}

func (f *fakeConverseEvents) Events() <-chan types.ConverseStreamOutput { return f.ch }
func (f *fakeConverseEvents) Err() error                               { return f.err }
func (f *fakeConverseEvents) Close() error                             { return nil }

func TestBedrockStream_TextAndToolUse(t *testing.T) {
	ch := make(chan types.ConverseStreamOutput, 8)
	ch <- &types.ConverseStreamOutputMemberMessageStart{}
	ch <- &types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
		ContentBlockIndex: aws.Int32(0),
		Delta:             &types.ContentBlockDeltaMemberText{Value: "Hi"},
	}}
	ch <- &types.ConverseStreamOutputMemberContentBlockStart{Value: types.ContentBlockStartEvent{
		ContentBlockIndex: aws.Int32(1),
		Start: &types.ContentBlockStartMemberToolUse{Value: types.ToolUseBlockStart{
			Name: aws.String("lookup"), ToolUseId: aws.String("tu1"),
		}},
	}}
	ch <- &types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
		ContentBlockIndex: aws.Int32(1),
		Delta:             &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`{"q":"x"}`)}},
	}}
	ch <- &types.ConverseStreamOutputMemberMetadata{Value: types.ConverseStreamMetadataEvent{
		Usage: &types.TokenUsage{InputTokens: aws.Int32(3), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(7)},
	}}
	close(ch)

	s := newBedrockStream(&fakeConverseEvents{ch: ch}, "m")
	var text string
	var fragments int
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if d.ToolCall != nil {
			fragments++
			continue
		}
		text += d.Content
	}
	if text != "Hi" || fragments != 2 {
		t.Fatalf("text=%q fragments=%d", text, fragments)
	}
	res := s.Result()
	if res.TotalTokens != 7 || len(res.ToolCalls) != 1 || res.ToolCalls[0].Function.Arguments["q"] != "x" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestBedrockStream_PropagatesError(t *testing.T) {
	ch := make(chan types.ConverseStreamOutput)
	close(ch)
	s := newBedrockStream(&fakeConverseEvents{ch: ch, err: errors.New("throttled")}, "m")
	if _, err := s.Recv(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("want error, got %v", err)
	}
}
