package webhook

// Wire types for the Cloud API notification payload. Only the fields the bot
// consumes are mapped; everything else is ignored.

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string `json:"field"`
	Value value  `json:"value"`
}

type value struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []message `json:"messages"`
}

type message struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Text      *textBody   `json:"text,omitempty"`
	Audio     *mediaRef   `json:"audio,omitempty"`
	Image     *imageRef   `json:"image,omitempty"`
	Context   *msgContext `json:"context,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

type imageRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

type msgContext struct {
	ID                  string `json:"id"`
	Forwarded           bool   `json:"forwarded"`
	FrequentlyForwarded bool   `json:"frequently_forwarded"`
}

// messages flattens the entry/change nesting into the messages it carries.
func (p payload) messages() []message {
	var out []message
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			if c.Field != "messages" {
				continue
			}
			out = append(out, c.Value.Messages...)
		}
	}
	return out
}
