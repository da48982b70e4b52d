package llm

import "io"

// singleShotStream replays a finished Response as a stream: one text delta, then
// one fragment per tool call, then EOF.
type singleShotStream struct {
	resp   Response
	deltas []Delta
}

func NewSingleShotStream(resp Response) ChatStream {
	s := &singleShotStream{resp: resp}
	if resp.Content != "" {
		s.deltas = append(s.deltas, Delta{Content: resp.Content})
	}
	for i, tc := range resp.ToolCalls {
		args := encodeJSONArgs(tc.Function.Arguments)
		s.deltas = append(s.deltas, Delta{
			Content:  args,
			ToolCall: &ToolCallDelta{Index: i, ID: tc.ID, Name: tc.Function.Name, Arguments: args},
		})
	}
	return s
}

func (s *singleShotStream) Recv() (Delta, error) {
	if len(s.deltas) == 0 {
		return Delta{}, io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *singleShotStream) Result() Response { return s.resp }

func (s *singleShotStream) Close() error { return nil }
