package organisms

// Mode is what the interaction panel currently shows.
type Mode int

const (
	ModeTyping  Mode = iota
	ModePicking      // choosing a document to upload
)
