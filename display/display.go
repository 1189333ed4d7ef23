package display

// Surface receives what the user should see. Every call replaces the
// previous content of its pane. Implementations are safe for concurrent use.
type Surface interface {
	ShowTranscript(text string)
	ShowAssistant(text string)
	ShowError(err error)
	ShowStatus(status string)
}

// Multi fans every update out to each surface in order.
type Multi []Surface

var _ Surface = Multi(nil)

func (m Multi) ShowTranscript(text string) {
	for _, s := range m {
		s.ShowTranscript(text)
	}
}

func (m Multi) ShowAssistant(text string) {
	for _, s := range m {
		s.ShowAssistant(text)
	}
}

func (m Multi) ShowError(err error) {
	for _, s := range m {
		s.ShowError(err)
	}
}

func (m Multi) ShowStatus(status string) {
	for _, s := range m {
		s.ShowStatus(status)
	}
}
