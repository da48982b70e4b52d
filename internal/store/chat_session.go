package store

// ChatSession is one conversation between a principal and an agent.
// Timestamps are unix seconds.
type ChatSession struct {
	SessionID    string
	Principal    string
	Agent        string
	Created      int64
	LastActivity int64
	// Ended is nil while the session is active.
	Ended *int64
}

func (s *ChatSession) Active() bool { return s.Ended == nil }

// FindChatSession filters for ListSessions.
type FindChatSession struct {
	SessionID  *string
	Principal  *string
	Agent      *string
	ActiveOnly bool
	// IdleBefore selects sessions whose last activity is older than the given time.
	IdleBefore *int64
}
