package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockClient talks to Bedrock models through the Converse API.
type BedrockClient struct {
	api   bedrockAPI
	model string
}

func NewBedrock(cfg aws.Config, model string) *BedrockClient {
	return &BedrockClient{api: bedrockruntime.NewFromConfig(cfg), model: model}
}

func (c *BedrockClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	system, msgs := toBedrockMessages(messages)
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.model),
		System:   system,
		Messages: msgs,
	})
	if err != nil {
		return Response{}, fmt.Errorf("bedrock converse: %w", err)
	}

	resp := Response{Model: c.model}
	if u := out.Usage; u != nil {
		resp.PromptTokens = int(aws.ToInt32(u.InputTokens))
		resp.CompletionTokens = int(aws.ToInt32(u.OutputTokens))
		resp.TotalTokens = int(aws.ToInt32(u.TotalTokens))
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, fmt.Errorf("bedrock converse: unexpected output %T", out.Output)
	}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Content += b.Value
		case *types.ContentBlockMemberToolUse:
			args := map[string]interface{}{}
			if b.Value.Input != nil {
				_ = b.Value.Input.UnmarshalSmithyDocument(&args)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:       aws.ToString(b.Value.ToolUseId),
				Type:     "function",
				Function: FunctionCall{Name: aws.ToString(b.Value.Name), Arguments: args},
			})
		}
	}
	return resp, nil
}

func (c *BedrockClient) Stream(ctx context.Context, messages []Message, tools []Tool) (ChatStream, error) {
	system, msgs := toBedrockMessages(messages)
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:    aws.String(c.model),
		System:     system,
		Messages:   msgs,
		ToolConfig: toBedrockTools(tools),
	}
	out, err := c.api.ConverseStream(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}
	return newBedrockStream(out.GetStream(), c.model), nil
}

// toBedrockMessages splits out system prompts and merges consecutive messages of the
// same role, since Converse requires strictly alternating turns.
func toBedrockMessages(messages []Message) ([]types.SystemContentBlock, []types.Message) {
	var system []types.SystemContentBlock
	var out []types.Message
	for _, m := range messages {
		var role types.ConversationRole
		var blocks []types.ContentBlock
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			}
			continue
		case RoleTool:
			role = types.ConversationRoleUser
			blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
			}})
		case RoleAssistant:
			role = types.ConversationRoleAssistant
			if m.Content != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := tc.Function.Arguments
				if args == nil {
					args = map[string]interface{}{}
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Function.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}
		default:
			role = types.ConversationRoleUser
			blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
		}
		if len(blocks) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return system, out
}

func toBedrockTools(tools []Tool) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	cfg := &types.ToolConfiguration{}
	for _, t := range tools {
		params := t.Function.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Function.Name),
			Description: aws.String(t.Function.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(params)},
		}})
	}
	return cfg
}

// converseEvents is the part of *bedrockruntime.ConverseStreamEventStream we consume.
type converseEvents interface {
	Events() <-chan types.ConverseStreamOutput
	Err() error
	Close() error
}

type bedrockStream struct {
	events converseEvents
	resp   Response
	calls  toolCallAccumulator
	done   bool
}

func newBedrockStream(events converseEvents, model string) *bedrockStream {
	return &bedrockStream{events: events, resp: Response{Model: model}}
}

func (s *bedrockStream) Recv() (Delta, error) {
	for {
		if s.done {
			return Delta{}, io.EOF
		}
		ev, ok := <-s.events.Events()
		if !ok {
			if err := s.events.Err(); err != nil {
				return Delta{}, fmt.Errorf("bedrock stream: %w", err)
			}
			s.done = true
			s.resp.ToolCalls = s.calls.result()
			continue
		}
		switch e := ev.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			tu, ok := e.Value.Start.(*types.ContentBlockStartMemberToolUse)
			if !ok {
				continue
			}
			td := ToolCallDelta{
				Index: int(aws.ToInt32(e.Value.ContentBlockIndex)),
				ID:    aws.ToString(tu.Value.ToolUseId),
				Name:  aws.ToString(tu.Value.Name),
			}
			s.calls.add(td)
			return Delta{ToolCall: &td}, nil
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch d := e.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				s.resp.Content += d.Value
				return Delta{Content: d.Value}, nil
			case *types.ContentBlockDeltaMemberToolUse:
				td := ToolCallDelta{
					Index:     int(aws.ToInt32(e.Value.ContentBlockIndex)),
					Arguments: aws.ToString(d.Value.Input),
				}
				s.calls.add(td)
				return Delta{Content: td.Arguments, ToolCall: &td}, nil
			}
		case *types.ConverseStreamOutputMemberMetadata:
			if u := e.Value.Usage; u != nil {
				s.resp.PromptTokens = int(aws.ToInt32(u.InputTokens))
				s.resp.CompletionTokens = int(aws.ToInt32(u.OutputTokens))
				s.resp.TotalTokens = int(aws.ToInt32(u.TotalTokens))
			}
		}
	}
}

func (s *bedrockStream) Result() Response { return s.resp }

func (s *bedrockStream) Close() error { return s.events.Close() }
