// internal/extraction/fuzz_test.go
package extraction

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// -- Fuzz Testing --
// Fuzz tests ensure robustness against arbitrary collected content.

func FuzzExtractAddresses(f *testing.F) {
	f.Add("contact Jobs@Acme.com or no-reply@acme.com")
	f.Add("@@@@")
	f.Add("plain text without anything")

	f.Fuzz(func(t *testing.T, text string) {
		addrs := ExtractAddresses(text)

		// Invariants: every returned address is lowercase and appears once.
		seen := map[string]bool{}
		for _, a := range addrs {
			assert.Equal(t, strings.ToLower(a), a, "addresses are normalized to lowercase")
			assert.False(t, seen[a], "no duplicates after case folding")
			seen[a] = true
		}
	})
}

func FuzzCandidateFromRawUnit(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		unit := schemas.RawUnit{}

		if err := fuzzConsumer.GenerateStruct(&unit); err != nil {
			return // Ignore inputs that can't be mapped to the struct.
		}

		rec := NewCandidate("golang", unit)
		assert.Equal(t, unit.Content, rec.RawContent)
		assert.Nil(t, rec.Classification)
	})
}

func FuzzTextFromHTML(f *testing.F) {
	f.Add("<div><p>hello</p></div>")
	f.Add("<script>bad()</script>visible")
	f.Add("< broken <<< markup")

	f.Fuzz(func(t *testing.T, fragment string) {
		text := TextFromHTML(fragment)
		assert.NotContains(t, text, "  ", "whitespace is collapsed")
	})
}
