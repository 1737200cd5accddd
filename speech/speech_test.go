package speech

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/signspeak/classifier"
)

type call struct {
	text    string
	profile Profile
	ctx     context.Context
}

// fakeVoice reports every Say and then blocks until released or cancelled.
type fakeVoice struct {
	calls   chan call
	release chan struct{}
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{calls: make(chan call, 16), release: make(chan struct{})}
}

func (v *fakeVoice) Say(ctx context.Context, text string, p Profile) error {
	v.calls <- call{text: text, profile: p, ctx: ctx}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-v.release:
		return nil
	}
}

func (v *fakeVoice) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-v.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Say")
		return call{}
	}
}

func (v *fakeVoice) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-v.calls:
		t.Fatalf("unexpected Say(%q)", c.text)
	case <-time.After(50 * time.Millisecond):
	}
}

func result(label string, confidence int) classifier.Result {
	return classifier.Result{Label: label, Confidence: confidence, CapturedAt: time.Now()}
}

func TestShouldSpeakIsStrictlyGreater(t *testing.T) {
	p := DefaultProfile()
	p.ConfidenceThreshold = 70

	assert.False(t, ShouldSpeak(result("HELLO", 70), p))
	assert.True(t, ShouldSpeak(result("HELLO", 71), p))

	p.AutoSpeak = false
	assert.False(t, ShouldSpeak(result("HELLO", 99), p))
}

func TestMaybeSpeakGate(t *testing.T) {
	v := newFakeVoice()
	f := NewFeedback(v)
	defer f.Close()

	p := DefaultProfile()
	p.ConfidenceThreshold = 90

	assert.False(t, f.MaybeSpeak(result("HELLO", 85), p))
	v.none(t)

	p.ConfidenceThreshold = 70
	assert.True(t, f.MaybeSpeak(result("HELLO", 85), p))
	c := v.next(t)
	assert.Equal(t, "HELLO", c.text)
	assert.Equal(t, p, c.profile)
}

func TestSpeakBypassesGate(t *testing.T) {
	v := newFakeVoice()
	f := NewFeedback(v)
	defer f.Close()

	p := DefaultProfile()
	p.AutoSpeak = false
	f.Speak("THANK YOU", p)

	assert.Equal(t, "THANK YOU", v.next(t).text)
	text, speaking := f.Speaking()
	assert.True(t, speaking)
	assert.Equal(t, "THANK YOU", text)
}

func TestTestVoiceUsesSamplePhrase(t *testing.T) {
	v := newFakeVoice()
	f := NewFeedback(v)
	defer f.Close()

	p := DefaultProfile()
	p.Rate = 1.5
	f.TestVoice(p)

	c := v.next(t)
	assert.Equal(t, TestPhrase, c.text)
	assert.Equal(t, 1.5, c.profile.Rate)
}

func TestNewUtterancePreemptsPrevious(t *testing.T) {
	v := newFakeVoice()
	f := NewFeedback(v)
	defer f.Close()

	p := DefaultProfile()
	f.Speak("YES", p)
	first := v.next(t)

	f.Speak("NO", p)
	second := v.next(t)

	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance was not cancelled")
	}
	assert.NoError(t, second.ctx.Err())

	text, speaking := f.Speaking()
	assert.True(t, speaking)
	assert.Equal(t, "NO", text)
}

func TestFinishedUtteranceClearsState(t *testing.T) {
	v := newFakeVoice()
	f := NewFeedback(v)
	defer f.Close()

	f.Speak("PLEASE", DefaultProfile())
	v.next(t)
	close(v.release)

	require.Eventually(t, func() bool {
		_, speaking := f.Speaking()
		return !speaking
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelAndClose(t *testing.T) {
	v := newFakeVoice()
	f := NewFeedback(v)

	f.Cancel()

	f.Speak("SORRY", DefaultProfile())
	c := v.next(t)
	f.Cancel()
	<-c.ctx.Done()

	_, speaking := f.Speaking()
	assert.False(t, speaking)

	f.Speak("HELP", DefaultProfile())
	c = v.next(t)
	f.Close()
	assert.Error(t, c.ctx.Err())
}

func TestProfileValidate(t *testing.T) {
	require.NoError(t, DefaultProfile().Validate())

	tests := []struct {
		name   string
		modify func(*Profile)
	}{
		{"rate low", func(p *Profile) { p.Rate = 0.4 }},
		{"rate high", func(p *Profile) { p.Rate = 2.1 }},
		{"pitch low", func(p *Profile) { p.Pitch = 0.1 }},
		{"volume high", func(p *Profile) { p.Volume = 1.5 }},
		{"threshold low", func(p *Profile) { p.ConfidenceThreshold = 49 }},
		{"threshold high", func(p *Profile) { p.ConfidenceThreshold = 96 }},
		{"language empty", func(p *Profile) { p.Language = " " }},
		{"rate NaN", func(p *Profile) { p.Rate = math.NaN() }},
		{"pitch NaN", func(p *Profile) { p.Pitch = math.NaN() }},
		{"volume NaN", func(p *Profile) { p.Volume = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidProfile)
		})
	}

	edges := DefaultProfile()
	edges.Rate, edges.Pitch, edges.Volume, edges.ConfidenceThreshold = 2.0, 0.5, 0.0, 95
	assert.NoError(t, edges.Validate())
}

func TestEspeakArgs(t *testing.T) {
	args := espeakArgs("HELLO", DefaultProfile())
	assert.Equal(t, []string{"--stdout", "-s", "140", "-p", "50", "-a", "100", "-v", "en-us", "HELLO"}, args)

	p := DefaultProfile()
	p.Rate, p.Pitch, p.Volume, p.Language = 2.0, 2.0, 0.0, "pt_BR"
	args = espeakArgs("SIM", p)
	assert.Equal(t, []string{"--stdout", "-s", "350", "-p", "99", "-a", "0", "-v", "pt-br", "SIM"}, args)
}

func TestNewVoice(t *testing.T) {
	v, err := NewVoice("none", "", nil)
	require.NoError(t, err)
	assert.IsType(t, LogVoice{}, v)

	_, err = NewVoice("festival", "", nil)
	assert.Error(t, err)

	_, err = NewVoice("espeak", "/nonexistent/espeak-ng", nil)
	assert.Error(t, err)
}
