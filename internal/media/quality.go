package media

// QualitySetting maps a named quality tier to encoder parameters.
type QualitySetting struct {
	Preset  string
	CRF     int
	Bitrate string
}

var qualitySettings = map[string]QualitySetting{
	"low":    {Preset: "veryfast", CRF: 28, Bitrate: "1M"},
	"medium": {Preset: "medium", CRF: 23, Bitrate: "3M"},
	"high":   {Preset: "slow", CRF: 18, Bitrate: "5M"},
}

// QualityByName returns the encoder settings for a named tier, defaulting
// to medium for unknown names.
func QualityByName(name string) QualitySetting {
	if q, ok := qualitySettings[name]; ok {
		return q
	}
	return qualitySettings["medium"]
}

// ResolutionSetting is a named output resolution.
type ResolutionSetting struct {
	Width  int
	Height int
}

var resolutionSettings = map[string]ResolutionSetting{
	"480p":  {Width: 854, Height: 480},
	"720p":  {Width: 1280, Height: 720},
	"1080p": {Width: 1920, Height: 1080},
}

// ResolutionByName returns a named resolution, defaulting to 720p for
// unknown names.
func ResolutionByName(name string) ResolutionSetting {
	if r, ok := resolutionSettings[name]; ok {
		return r
	}
	return resolutionSettings["720p"]
}
