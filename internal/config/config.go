package config

// Config is the process configuration assembled at startup. Fields here are
// immutable for the life of the process; the runtime-adjustable subset lives
// in Settings.
type Config struct {
	Name    string
	Version string
	Address string

	AllowedOrigins []string

	StoreType       string
	StoreLocation   string
	StoreCollection string
	StoreApiKey     string

	EmbedderType     string
	EmbedderLocation string
	EmbedderApiKey   string
	EmbedderModel    string
	EmbedderDim      int
	DocumentPrefix   string
	QueryPrefix      string

	CompletionType   string
	CompletionApiKey string
	CompletionModel  string
	SystemPrompt     string

	ChunkSize    int
	ChunkOverlap int

	TemplatesDir string
}
