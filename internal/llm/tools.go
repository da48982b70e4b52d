package llm

import (
	"encoding/json"
	"sort"
)

// Tool is the provider-neutral function declaration sent to a model.
type Tool struct {
	Type     string
	Function Function
}

type Function struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

type FunctionCall struct {
	Name      string
	Arguments map[string]interface{}
}

// parseJSONArgs парсит аргументы функции из JSON строки
func parseJSONArgs(args string) map[string]interface{} {
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(args), &result); err != nil || result == nil {
		return make(map[string]interface{})
	}
	return result
}

func encodeJSONArgs(args map[string]interface{}) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// toolCallAccumulator assembles streamed tool call fragments by index.
type toolCallAccumulator struct {
	calls map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args []byte
}

func (a *toolCallAccumulator) add(d ToolCallDelta) {
	if a.calls == nil {
		a.calls = make(map[int]*pendingCall)
	}
	pc, ok := a.calls[d.Index]
	if !ok {
		pc = &pendingCall{}
		a.calls[d.Index] = pc
	}
	if d.ID != "" {
		pc.id = d.ID
	}
	if d.Name != "" {
		pc.name = d.Name
	}
	pc.args = append(pc.args, d.Arguments...)
}

func (a *toolCallAccumulator) result() []ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]ToolCall, 0, len(idx))
	for _, i := range idx {
		pc := a.calls[i]
		out = append(out, ToolCall{
			ID:   pc.id,
			Type: "function",
			Function: FunctionCall{
				Name:      pc.name,
				Arguments: parseJSONArgs(string(pc.args)),
			},
		})
	}
	return out
}
