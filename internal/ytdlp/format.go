package ytdlp

// Pure composition of yt-dlp format selectors and ffmpeg audio filter
// graphs. Everything in this file is deterministic for a given
// (quality, effect, kind) triple and performs no I/O; the pipeline and the
// tests both rely on that.

type (
	// TargetKind is the requested output flavour of a job.
	TargetKind string

	// Quality is a named video resolution ceiling. It has no bearing on
	// audio jobs.
	Quality string

	// Effect is a named audio transform applied during conversion.
	Effect string
)

const (
	KindAudio TargetKind = "audio"
	KindVideo TargetKind = "video"

	QualityMax  Quality = "max"
	Quality1080 Quality = "1080"
	Quality720  Quality = "720"
	Quality360  Quality = "360"

	EffectNone      Effect = "none"
	EffectSlowed    Effect = "slowed"
	EffectNightcore Effect = "nightcore"
	EffectBassboost Effect = "bassboost"
)

// ParseKind maps a request string onto a TargetKind, defaulting to audio.
func ParseKind(raw string) TargetKind {
	if TargetKind(raw) == KindVideo {
		return KindVideo
	}

	return KindAudio
}

// ParseQuality maps a request string onto a Quality tier. Unknown tiers fall
// back to QualityMax rather than erroring.
func ParseQuality(raw string) Quality {
	switch Quality(raw) {
	case Quality1080, Quality720, Quality360:
		return Quality(raw)
	default:
		return QualityMax
	}
}

// ParseEffect maps a request string onto an Effect. Unknown effect names
// fall back to EffectNone rather than erroring.
func ParseEffect(raw string) Effect {
	switch Effect(raw) {
	case EffectSlowed, EffectNightcore, EffectBassboost:
		return Effect(raw)
	default:
		return EffectNone
	}
}

// FormatSelector returns the yt-dlp format selection expression for the
// quality tier provided. Capped tiers prefer an mp4 video stream at or below
// the ceiling paired with an m4a audio stream, falling back to the best
// available mp4 (and finally to best overall) when the capped combination
// does not exist upstream. QualityMax imposes no height cap.
func FormatSelector(quality Quality) string {
	switch quality {
	case Quality1080:
		return "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	case Quality720:
		return "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	case Quality360:
		return "bestvideo[height<=360][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	default:
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
}

// AudioFilter returns the ffmpeg '-af' filter graph for the effect provided,
// or an empty string when no filtering applies.
//
// The slowed rate factor (0.88) and nightcore factor (1.25) are part of the
// product definition; changing them changes the sound of every published
// variant.
func AudioFilter(effect Effect) string {
	switch effect {
	case EffectSlowed:
		return "asetrate=44100*0.88,atempo=1.0,aecho=0.8:0.9:1000:0.3"
	case EffectNightcore:
		return "asetrate=44100*1.25,atempo=1.0"
	case EffectBassboost:
		return "bass=g=10:f=110:w=0.6"
	default:
		return ""
	}
}
