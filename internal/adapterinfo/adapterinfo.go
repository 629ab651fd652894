package adapterinfo

// Metadata captures static identifiers for the adapter. Centralising the values
// makes it easy to clone this repository for new adapters.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current adapter.
var Info = Metadata{
	Name:        "Nupi Azure Speech",
	BinaryName:  "plugin-stt-azure-speech",
	Slug:        "stt-azure-speech",
	Description: "Speech adapter bridging Azure Speech SDK callbacks into event streams.",
	GeneratorID: "stt-azure-speech",
	Version:     "0.3.0",
}

// Version reports the adapter release.
func Version() string { return Info.Version }

// ResultMetadata produces the standard metadata payload attached
// to emitted results.
func ResultMetadata(language string) map[string]string {
	return map[string]string{
		"generator": Info.GeneratorID,
		"version":   Info.Version,
		"language":  language,
	}
}
