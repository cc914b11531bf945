// internal/behavior/typing.go
package behavior

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// -- keyboardNeighbors maps characters to their adjacent keys on a QWERTY layout --
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// -- commonNgrams contains common letter combinations to simulate rhythmic typing --
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// TypingPlan converts text into a keystroke schedule the driver can replay.
// Each entry carries the pause preceding its key press; practiced letter
// sequences come out tighter, shifted and punctuation characters slower, and
// a slip of the profile's typo rate produces a wrong neighboring key that is
// noticed, erased, and retyped.
func (s *Simulator) TypingPlan(text string) []schemas.KeyPress {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plan := make([]schemas.KeyPress, 0, len(runes))
	typoRate := s.effectiveTypoRateLocked()

	for i, r := range runes {
		press := schemas.KeyPress{
			Rune:  r,
			Delay: s.keyDelayLocked(runes, i),
		}

		if s.rng.Float64() < typoRate {
			if typo := s.planTypoLocked(r); typo != nil {
				press.Typo = typo
			}
		}
		plan = append(plan, press)
	}
	return plan
}

// effectiveTypoRateLocked applies fatigue to the profile's slip rate. Forced
// rates above 1.0 are left alone. Callers must hold mu.
func (s *Simulator) effectiveTypoRateLocked() float64 {
	rate := s.profile.TypoRate
	if rate > 1.0 {
		return rate
	}
	return math.Min(0.25, rate*(1.0+s.fatigue))
}

// keyDelayLocked computes the inter-key delay before runes[i]. Callers must
// hold mu.
func (s *Simulator) keyDelayLocked(runes []rune, i int) time.Duration {
	mean := s.profile.KeyDelayMeanMs
	stdDev := s.profile.KeyDelayStdDevMs
	minDelay := s.profile.KeyDelayMinMs

	ngramFactor := 1.0
	if i > 1 {
		trigraph := strings.ToLower(string(runes[i-2 : i+1]))
		if commonNgrams[trigraph] {
			ngramFactor = s.cfg.TrigramFactor
		} else if commonNgrams[strings.ToLower(string(runes[i-1 : i+1]))] {
			ngramFactor = s.cfg.DigramFactor
		}
	} else if i == 1 && commonNgrams[strings.ToLower(string(runes[:2]))] {
		ngramFactor = s.cfg.DigramFactor
	}

	classFactor := 1.0
	switch {
	case unicode.IsUpper(runes[i]):
		classFactor = s.cfg.UppercaseFactor
	case unicode.IsPunct(runes[i]) || unicode.IsSymbol(runes[i]):
		classFactor = s.cfg.PunctuationFactor
	}

	mean *= ngramFactor * classFactor * s.slowdownLocked()
	minDelay *= ngramFactor

	delay := math.Max(minDelay, s.rng.NormFloat64()*stdDev+mean)
	return time.Duration(delay) * time.Millisecond
}

// planTypoLocked picks a wrong neighboring key for the intended rune and the
// pauses around noticing and fixing it. Runes with no mapped neighbors (such
// as spaces) cannot slip. Callers must hold mu.
func (s *Simulator) planTypoLocked(intended rune) *schemas.TypoEvent {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(intended)]
	if !ok || len(neighbors) == 0 {
		return nil
	}

	wrong := rune(neighbors[s.rng.Intn(len(neighbors))])
	if unicode.IsUpper(intended) {
		wrong = unicode.ToUpper(wrong)
	}

	return &schemas.TypoEvent{
		WrongRune:    wrong,
		NoticeDelay:  s.uniformMsLocked(s.cfg.TypoNoticeMinMs, s.cfg.TypoNoticeMaxMs),
		CorrectDelay: s.uniformMsLocked(s.cfg.TypoCorrectMinMs, s.cfg.TypoCorrectMaxMs),
	}
}

// uniformMsLocked draws a duration uniformly from [lo, hi] milliseconds.
// Callers must hold mu.
func (s *Simulator) uniformMsLocked(lo, hi float64) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	return time.Duration(lo+s.rng.Float64()*(hi-lo)) * time.Millisecond
}
