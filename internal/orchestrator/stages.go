package orchestrator

import "github.com/mondo989/MemeSync/internal/models"

// stageInfo is the progress a job shows the moment a stage begins.
type stageInfo struct {
	percent int
	message string
}

// stageTable is the fixed progress table for the pipeline. Every stage
// reports itself through its explicit identifier; nothing infers progress
// from log output.
var stageTable = map[models.Stage]stageInfo{
	models.StageFetchAudio:      {percent: 5, message: "Fetching source audio"},
	models.StageTranscribe:      {percent: 20, message: "Transcribing lyrics"},
	models.StageExtractKeywords: {percent: 35, message: "Extracting keywords"},
	models.StageMatchAssets:     {percent: 55, message: "Matching meme images"},
	models.StageExpandSegments:  {percent: 65, message: "Building the slide timeline"},
	models.StageRenderFrames:    {percent: 70, message: "Rendering slides"},
	models.StageComposeVideo:    {percent: 85, message: "Composing the final video"},
}

// The review pause sits between keyword extraction and asset matching.
const (
	reviewPercent = 45
	reviewMessage = "Waiting for keyword review"
)

// renderPercentFor spreads per-slide progress across the render stage's
// span, topping out at the compose stage's entry percentage so progress
// stays monotonic.
func renderPercentFor(done, total int) int {
	floor := stageTable[models.StageRenderFrames].percent
	ceil := stageTable[models.StageComposeVideo].percent
	if total <= 0 {
		return floor
	}
	return floor + (ceil-floor)*done/total
}
