package notify

// Message is one outbound notification.
type Message struct {
	To         string      `json:"to"`
	ToName     string      `json:"to_name,omitempty"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment is an opaque file attached to a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
