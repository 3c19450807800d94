package chat

// SystemPrompt frames every completion. It is prepended before the
// session history on each turn.
const SystemPrompt = "You are a helpful assistant. Answer clearly and concisely, " +
	"and say so when you do not know something."
