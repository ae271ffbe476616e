package avplay

import (
	"errors"

	"github.com/erparts/reisen"
	"github.com/hajimehoshi/ebiten/v2/audio"
)

// DefaultSampleRate is used by [AudioContextForMedia] when the media has no
// audio stream.
const DefaultSampleRate = 48000

var ErrNoAudio error = errors.New("media contains no audio")
var ErrNonNilAudioContext = errors.New("audio context already initialized")

// Creates an ebitengine audio context at the sample rate of the given
// media's first audio stream, so that its audio can be played without
// resampling. Only one context can exist per process; if one already
// exists, [ErrNonNilAudioContext] is returned.
func CreateAudioContextForMedia(pathOrURL string) error {
	if audio.CurrentContext() != nil {
		return ErrNonNilAudioContext
	}

	sampleRate, err := GetMediaAudioSampleRate(pathOrURL)
	if err != nil {
		return err
	}
	_ = audio.NewContext(sampleRate)
	return nil
}

// AudioContextForMedia returns the current ebitengine audio context, or
// creates one as [CreateAudioContextForMedia]() does. Media without audio
// get a context at [DefaultSampleRate].
func AudioContextForMedia(pathOrURL string) (*audio.Context, error) {
	if current := audio.CurrentContext(); current != nil {
		return current, nil
	}
	sampleRate, err := GetMediaAudioSampleRate(pathOrURL)
	if errors.Is(err, ErrNoAudio) {
		sampleRate, err = DefaultSampleRate, nil
	}
	if err != nil {
		return nil, err
	}
	return audio.NewContext(sampleRate), nil
}

// If the media has no audio, [ErrNoAudio] will be returned.
func GetMediaAudioSampleRate(pathOrURL string) (int, error) {
	container, err := reisen.NewMedia(pathOrURL)
	if err != nil {
		return 0, err
	}
	defer container.Close()

	audioStreams := container.AudioStreams()
	if len(audioStreams) == 0 {
		return 0, ErrNoAudio
	}
	return audioStreams[0].SampleRate(), nil
}
