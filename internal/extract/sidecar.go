package extract

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kikiluvv/combatclip/internal/clips"
)

// Sidecar is the metadata document written next to the merged highlight video
type Sidecar struct {
	SourceVideo   string             `json:"source_video"`
	Segments      []clips.ClipWindow `json:"segments"`
	TotalSegments int                `json:"total_segments"`
	OutputVideo   string             `json:"output_video"`
}

func writeSidecar(source string, segments []clips.ClipWindow, outVideo, outJSON string) error {
	doc := Sidecar{
		SourceVideo:   filepath.Base(source),
		Segments:      segments,
		TotalSegments: len(segments),
		OutputVideo:   filepath.Base(outVideo),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(outJSON, data, 0644)
}
