package models

// Mood dimensions, in catalog column order.
const (
	MoodHype        = "hype"
	MoodAggressive  = "aggressive"
	MoodMelodic     = "melodic"
	MoodAtmospheric = "atmospheric"
	MoodCinematic   = "cinematic"
	MoodRhythmic    = "rhythmic"
)

// MoodDimensions lists every mood feature a track carries.
var MoodDimensions = []string{MoodHype, MoodAggressive, MoodMelodic, MoodAtmospheric, MoodCinematic, MoodRhythmic}

// Mood value bounds.
const (
	MoodMin     = 0
	MoodMax     = 100
	MoodNeutral = 50
)

// IsMoodDimension reports whether name is a known mood feature.
func IsMoodDimension(name string) bool {
	for _, d := range MoodDimensions {
		if d == name {
			return true
		}
	}
	return false
}

// ClampMood bounds v to [MoodMin, MoodMax].
func ClampMood(v int) int {
	if v < MoodMin {
		return MoodMin
	}
	if v > MoodMax {
		return MoodMax
	}
	return v
}

// Track is a catalog entry. The catalog is owned by the scanner; this
// service only reads it. Score is attached by the recommendation pipeline
// and never persisted.
type Track struct {
	Path     string `gorm:"primaryKey;size:768" json:"path"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Genre    string `json:"genre"`
	Tags     string `gorm:"type:text" json:"tags"`
	Year     int    `json:"year"`
	Filename string `json:"filename"`

	Hype        int `json:"hype"`
	Aggressive  int `json:"aggressive"`
	Melodic     int `json:"melodic"`
	Atmospheric int `json:"atmospheric"`
	Cinematic   int `json:"cinematic"`
	Rhythmic    int `json:"rhythmic"`

	// Reserved for embeddings. Only presence is consulted today.
	AudioEmbedding []byte `gorm:"column:audio_blob" json:"audio_blob,omitempty"`
	MetaEmbedding  []byte `gorm:"column:meta_blob" json:"meta_blob,omitempty"`

	Score float64 `gorm:"-" json:"score,omitempty"`
}

// TableName keeps the catalog table name used by the scanner.
func (Track) TableName() string { return "songs" }

// Mood returns the clamped value for dim, or false for an unknown dimension.
func (t Track) Mood(dim string) (int, bool) {
	var v int
	switch dim {
	case MoodHype:
		v = t.Hype
	case MoodAggressive:
		v = t.Aggressive
	case MoodMelodic:
		v = t.Melodic
	case MoodAtmospheric:
		v = t.Atmospheric
	case MoodCinematic:
		v = t.Cinematic
	case MoodRhythmic:
		v = t.Rhythmic
	default:
		return 0, false
	}
	return ClampMood(v), true
}

// MoodVector returns all six mood values keyed by dimension.
func (t Track) MoodVector() map[string]int {
	out := make(map[string]int, len(MoodDimensions))
	for _, d := range MoodDimensions {
		v, _ := t.Mood(d)
		out[d] = v
	}
	return out
}

// HasAudioEmbedding reports whether the audio blob is populated.
func (t Track) HasAudioEmbedding() bool { return len(t.AudioEmbedding) > 0 }

// HasMetaEmbedding reports whether the metadata blob is populated.
func (t Track) HasMetaEmbedding() bool { return len(t.MetaEmbedding) > 0 }

// WithScore returns a copy of t carrying score.
func (t Track) WithScore(score float64) Track {
	t.Score = score
	return t
}
