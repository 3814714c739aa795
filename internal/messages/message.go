package messages

import "github.com/solatis/fieldflow/internal/reactive"

// Message is a configured message: a fixed string or a reactive one whose
// changes re-run resolution.
type Message struct {
	static string
	source reactive.Readable[string]
}

// Static returns a fixed message.
func Static(text string) Message {
	return Message{static: text}
}

// Reactive returns a message that follows source.
func Reactive(source reactive.Readable[string]) Message {
	return Message{source: source}
}

// IsReactive reports whether the message follows a reactive source.
func (m Message) IsReactive() bool {
	return m.source != nil
}

// Text returns the message's current text.
func (m Message) Text() string {
	if m.source != nil {
		return m.source.Get()
	}
	return m.static
}

// Map maps error kinds to messages.
type Map map[string]Message

// StaticMap builds a Map of fixed messages.
func StaticMap(texts map[string]string) Map {
	m := make(Map, len(texts))
	for kind, text := range texts {
		m[kind] = Static(text)
	}
	return m
}
