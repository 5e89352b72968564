package domain

// ReActStep is one Thought/Action/Observation round of the chat agent.
type ReActStep struct {
	Thought       string                 `json:"thought"`
	Action        string                 `json:"action,omitempty"`
	ActionInput   map[string]interface{} `json:"action_input,omitempty"`
	Observation   string                 `json:"observation,omitempty"`
	IsFinalAnswer bool                   `json:"is_final_answer"`
	FinalAnswer   string                 `json:"final_answer,omitempty"`
}

// AgentResponse is what a chat turn returns to the caller.
// Pending lists asset jobs still rendering in the background.
type AgentResponse struct {
	ConversationID ConversationID `json:"conversation_id"`
	Response       string         `json:"response"`
	Thought        string         `json:"thought,omitempty"`
	Steps          []ReActStep    `json:"steps"`
	Pending        []AssetJobID   `json:"pending,omitempty"`
}
