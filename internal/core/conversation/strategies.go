package conversation

// strategy is one shape of the chat_messages table the store knows how to
// talk to. Strategies are tried in order; prunable ones drop optional
// columns the database reports as unknown and retry.
type strategy struct {
	name     string
	columns  []string
	prunable bool
}

var writeStrategies = []strategy{
	{name: "canonical", columns: []string{"content", "metadata"}},
	{name: "legacy", columns: []string{"content", "message", "response", "metadata"}, prunable: true},
}

var baseReadColumns = []string{"id", "user_id", "client_id", "role", "created_at"}

var readStrategies = []strategy{
	{name: "canonical", columns: []string{"content", "metadata"}, prunable: true},
	{name: "legacy", columns: []string{"message", "response", "metadata"}, prunable: true},
}

func without(cols []string, drop string) ([]string, bool) {
	out := make([]string, 0, len(cols))
	found := false
	for _, c := range cols {
		if c == drop {
			found = true
			continue
		}
		out = append(out, c)
	}
	return out, found
}
