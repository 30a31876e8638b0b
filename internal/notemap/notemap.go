// Package notemap is a pure, stateless translation layer between a
// frequency and a musical note (name, octave, cents offset) relative to a
// tuning system and an explicit tuning fork. It has no dependency on the
// rest of intonationcore and can be unit tested in isolation.
package notemap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// NoteName is one of the twelve pitch classes, C through B.
type NoteName int

const (
	C NoteName = iota
	CSharp
	D
	DSharp
	E
	F
	FSharp
	G
	GSharp
	A
	ASharp
	B
)

func (n NoteName) String() string {
	names := [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	idx := mod12(int(n))
	return names[idx]
}

// MusicalNote is the result of mapping a frequency onto a tuning system.
type MusicalNote struct {
	Name        NoteName
	Octave      int
	CentsOffset float32
	Frequency   float32
}

// Fork anchors a tuning system: the MIDI note number and frequency of the
// reference tone ("tuning fork").
type Fork struct {
	MIDINote  int
	Frequency float32
}

// SystemKind discriminates the TuningSystem sum type.
type SystemKind int

const (
	EqualTemperament SystemKind = iota
	JustIntonation
	Custom
)

// TuningSystem is a tagged union: EqualTemperament and JustIntonation carry
// no data, Custom carries a frequency-ratio table indexed like the just
// intonation table (C=0 .. B=11, wrapping modulo len(Ratios)).
//
// This is the explicit-fork form flagged as preferred in the source
// material's Open Questions: the fork is always supplied at the call site
// (see Fork above), never baked into the TuningSystem value itself.
type TuningSystem struct {
	Kind   SystemKind
	Ratios []float32 // only meaningful when Kind == Custom
}

// justIntonationRatios are the classic 5-limit just intonation ratios
// relative to the tonic, indexed C..B.
var justIntonationRatios = [12]float32{
	1.0,      // C   1/1
	16.0 / 15.0, // C#  16/15
	9.0 / 8.0,   // D   9/8
	6.0 / 5.0,   // D#  6/5
	5.0 / 4.0,   // E   5/4
	4.0 / 3.0,   // F   4/3
	45.0 / 32.0, // F#  45/32
	3.0 / 2.0,   // G   3/2
	8.0 / 5.0,   // G#  8/5
	5.0 / 3.0,   // A   5/3
	9.0 / 5.0,   // A#  9/5
	15.0 / 8.0,  // B   15/8
}

func mod12(i int) int {
	m := i % 12
	if m < 0 {
		m += 12
	}
	return m
}

// noteAliases maps a case-folded pitch-class spelling (sharp or flat) onto
// its NoteName, so "c#", "C#", and the enharmonic "db" all resolve to the
// same pitch class.
var noteAliases = map[string]NoteName{
	"c": C, "c#": CSharp, "db": CSharp,
	"d": D, "d#": DSharp, "eb": DSharp,
	"e": E,
	"f": F, "f#": FSharp, "gb": FSharp,
	"g": G, "g#": GSharp, "ab": GSharp,
	"a": A, "a#": ASharp, "bb": ASharp,
	"b": B,
}

var noteFolder = cases.Fold()

// ParseNoteName parses a human-entered note name like "C#4" or "Bb3" into
// its pitch class and octave. Matching is case-insensitive via
// golang.org/x/text/cases, so "C#4" and "c#4" resolve the same way. Width
// is not folded: the octave must be written in ASCII digits, and
// full-width characters are rejected.
func ParseNoteName(s string) (NoteName, int, error) {
	folded := noteFolder.String(strings.TrimSpace(s))
	if folded == "" {
		return 0, 0, fmt.Errorf("notemap: empty note name")
	}

	i := len(folded)
	for i > 0 && (folded[i-1] == '-' || (folded[i-1] >= '0' && folded[i-1] <= '9')) {
		i--
	}
	namePart, octavePart := folded[:i], folded[i:]
	if octavePart == "" || octavePart == "-" {
		return 0, 0, fmt.Errorf("notemap: %q has no octave number", s)
	}

	name, ok := noteAliases[namePart]
	if !ok {
		return 0, 0, fmt.Errorf("notemap: unrecognized note name %q", s)
	}

	octave, err := strconv.Atoi(octavePart)
	if err != nil {
		return 0, 0, fmt.Errorf("notemap: invalid octave in %q: %w", s, err)
	}

	return name, octave, nil
}

// MIDINumber converts a pitch class and octave (MIDI convention: octave -1
// starts at C) into an absolute MIDI note number.
func MIDINumber(name NoteName, octave int) int {
	return nameOctaveToMIDI(name, octave)
}

// StandardFrequency returns the 12-tone-equal-temperament frequency of an
// absolute MIDI note number under the universal A4=440Hz reference. Used to
// bootstrap a Fork from a human-entered note name before any other tuning
// fork has been established (see cmd/intonationcore-bench's --fork flag).
func StandardFrequency(midi int) float32 {
	return midiNoteToFrequencyEqualTemperament(midi, Fork{MIDINote: 69, Frequency: 440})
}

// Cents computes the logarithmic pitch distance between freq and ref in
// cents. Returns 0 for non-positive inputs instead of NaN/Inf.
func Cents(freq, ref float32) float32 {
	if freq <= 0 || ref <= 0 {
		return 0
	}
	return float32(1200.0 * math.Log2(float64(freq)/float64(ref)))
}

// FrequencyToNote maps freq onto the given tuning system, anchored at fork.
func FrequencyToNote(freq float32, fork Fork, system TuningSystem) MusicalNote {
	switch system.Kind {
	case JustIntonation:
		return frequencyToNoteJustIntonation(freq, fork)
	case Custom:
		if len(system.Ratios) == 0 {
			return frequencyToNoteEqualTemperament(freq, fork)
		}
		return frequencyToNoteCustom(freq, fork, system.Ratios)
	default:
		return frequencyToNoteEqualTemperament(freq, fork)
	}
}

// NoteToFrequency is the inverse of FrequencyToNote: given a note
// (name/octave) under a tuning system anchored at fork, returns the
// system's reference frequency for that note.
func NoteToFrequency(note MusicalNote, fork Fork, system TuningSystem) float32 {
	switch system.Kind {
	case JustIntonation:
		return noteToFrequencyJustIntonation(note, fork)
	case Custom:
		if len(system.Ratios) == 0 {
			return noteToFrequencyEqualTemperament(note, fork)
		}
		return noteToFrequencyCustom(note, fork, system.Ratios)
	default:
		return noteToFrequencyEqualTemperament(note, fork)
	}
}

// midiToNameOctave splits an (absolute, possibly rounded) MIDI note number
// into a pitch class and an octave using the MIDI convention where note 0
// is C-1, i.e. octave = midi/12 - 1.
func midiToNameOctave(midi int) (NoteName, int) {
	idx := mod12(midi)
	octave := int(math.Floor(float64(midi)/12.0)) - 1
	return NoteName(idx), octave
}

func nameOctaveToMIDI(name NoteName, octave int) int {
	return int(name)%12 + (octave+1)*12
}

func frequencyToNoteEqualTemperament(freq float32, fork Fork) MusicalNote {
	midiFloat := 69.0 + 12.0*math.Log2(float64(freq)/float64(fork.Frequency)) + float64(fork.MIDINote-69)
	rounded := int(math.Round(midiFloat))

	name, octave := midiToNameOctave(rounded)
	ref := midiNoteToFrequencyEqualTemperament(rounded, fork)
	cents := Cents(freq, ref)

	return MusicalNote{Name: name, Octave: octave, CentsOffset: cents, Frequency: freq}
}

func midiNoteToFrequencyEqualTemperament(midi int, fork Fork) float32 {
	return fork.Frequency * float32(math.Pow(2, float64(midi-fork.MIDINote)/12.0))
}

func noteToFrequencyEqualTemperament(note MusicalNote, fork Fork) float32 {
	midi := nameOctaveToMIDI(note.Name, note.Octave)
	return midiNoteToFrequencyEqualTemperament(midi, fork)
}

// justIntonationRoot derives the frequency of the just-intonation "C"
// anchor by stepping the fork down by equal-tempered semitones to the
// nearest C, per §4.4: "the 'C' anchor is derived from the fork by
// stepping down by equal-tempered semitones".
func justIntonationRoot(fork Fork) (rootFreq float32, rootOctave int) {
	// Equal-tempered MIDI note of the fork, then walk down to the nearest C.
	forkMIDI := fork.MIDINote
	cMIDI := forkMIDI - mod12(forkMIDI)
	rootFreq = fork.Frequency * float32(math.Pow(2, float64(cMIDI-forkMIDI)/12.0))
	_, rootOctave = midiToNameOctave(cMIDI)
	return rootFreq, rootOctave
}

func frequencyToNoteJustIntonation(freq float32, fork Fork) MusicalNote {
	rootFreq, rootOctave := justIntonationRoot(fork)

	bestIdx := 0
	bestOctave := 4
	bestDistance := float32(math.Inf(1))

	for octave := 0; octave <= 8; octave++ {
		octaveMultiplier := float32(math.Pow(2, float64(octave-rootOctave)))
		for idx, ratio := range justIntonationRatios {
			candidate := rootFreq * ratio * octaveMultiplier
			distance := float32(math.Abs(float64(freq - candidate)))
			if distance < bestDistance {
				bestDistance = distance
				bestIdx = idx
				bestOctave = octave
			}
		}
	}

	octaveMultiplier := float32(math.Pow(2, float64(bestOctave-rootOctave)))
	ref := rootFreq * justIntonationRatios[bestIdx] * octaveMultiplier
	cents := Cents(freq, ref)

	return MusicalNote{Name: NoteName(bestIdx), Octave: bestOctave, CentsOffset: cents, Frequency: freq}
}

func noteToFrequencyJustIntonation(note MusicalNote, fork Fork) float32 {
	rootFreq, rootOctave := justIntonationRoot(fork)
	idx := mod12(int(note.Name))
	octaveMultiplier := float32(math.Pow(2, float64(note.Octave-rootOctave)))
	return rootFreq * justIntonationRatios[idx] * octaveMultiplier
}

func frequencyToNoteCustom(freq float32, fork Fork, ratios []float32) MusicalNote {
	bestIdx := 0
	bestOctave := 4
	bestDistance := float32(math.Inf(1))

	for octave := 0; octave <= 8; octave++ {
		octaveMultiplier := float32(math.Pow(2, float64(octave-4)))
		for idx, ratio := range ratios {
			candidate := fork.Frequency * ratio * octaveMultiplier
			distance := float32(math.Abs(float64(freq - candidate)))
			if distance < bestDistance {
				bestDistance = distance
				bestIdx = idx
				bestOctave = octave
			}
		}
	}

	octaveMultiplier := float32(math.Pow(2, float64(bestOctave-4)))
	ref := fork.Frequency * ratios[bestIdx] * octaveMultiplier
	cents := Cents(freq, ref)

	return MusicalNote{Name: NoteName(mod12(bestIdx)), Octave: bestOctave, CentsOffset: cents, Frequency: freq}
}

func noteToFrequencyCustom(note MusicalNote, fork Fork, ratios []float32) float32 {
	idx := mod12(int(note.Name)) % len(ratios)
	octaveMultiplier := float32(math.Pow(2, float64(note.Octave-4)))
	return fork.Frequency * ratios[idx] * octaveMultiplier
}

// IntervalSemitones returns the signed semitone distance from tonicMIDI to
// midi (both absolute MIDI note numbers).
func IntervalSemitones(tonicMIDI, midi int) int {
	return midi - tonicMIDI
}

// IntervalFrequency is the inverse of IntervalSemitones for a given tuning
// system: it returns the frequency semitones away from the fork, used by
// the test-signal UI to preview an interval before playing it.
func IntervalFrequency(system TuningSystem, fork Fork, semitones int) float32 {
	note := MusicalNote{}
	targetMIDI := fork.MIDINote + semitones
	note.Name, note.Octave = midiToNameOctave(targetMIDI)
	return NoteToFrequency(note, fork, system)
}
