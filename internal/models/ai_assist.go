package models

// AIAssistRequest asks the completion service to draft or rewrite a message
type AIAssistRequest struct {
	// Action is draft_message or rewrite_message
	Action string `json:"action" binding:"required,oneof=draft_message rewrite_message" example:"draft_message"`
	// Brief describes what the message should say when drafting
	Brief string `json:"brief,omitempty" example:"Remind the lead about tomorrow's demo"`
	// Text is the message to rewrite
	Text string `json:"text,omitempty"`
	Tone string `json:"tone,omitempty" example:"friendly"`
	// MaxChars keeps the result inside one credit tier
	MaxChars int `json:"max_chars,omitempty" binding:"omitempty,min=20,max=1000" example:"140"`
}

// AIAssistResponse is the generated text and what it cost
type AIAssistResponse struct {
	Action      string `json:"action" example:"draft_message"`
	Text        string `json:"text"`
	Characters  int    `json:"characters" example:"120"`
	CreditsUsed int64  `json:"credits_used" example:"2"`
	// MessageCost is what sending Text to one recipient would cost
	MessageCost int64 `json:"message_cost" example:"1"`
}
