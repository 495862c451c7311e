package wordbreak

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layout-translator/internal/types"
)

func TestNew(t *testing.T) {
	p, err := New("uax14")
	require.NoError(t, err)
	assert.IsType(t, LineBreaker{}, p)

	p, err = New("UAX29")
	require.NoError(t, err)
	assert.IsType(t, WordSegmenter{}, p)

	p, err = New("none")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = New("newmm")
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestLineBreaker(t *testing.T) {
	assert.Equal(t, []string{"hello ", "big ", "world"}, LineBreaker{}.Segment("hello big world"))
	assert.Nil(t, LineBreaker{}.Segment(""))
}

func TestWordSegmenter(t *testing.T) {
	assert.Equal(t, []string{"hello", " ", "big", " ", "world"}, WordSegmenter{}.Segment("hello big world"))
	assert.Empty(t, WordSegmenter{}.Segment(""))
}

func TestSegmentsCoverText(t *testing.T) {
	inputs := []string{
		"hello big world",
		"สวัสดีครับ ยินดีต้อนรับ",
		"คำนวณ {v0} ต่อไป",
		"mixed ภาษา text, with punctuation!",
	}
	providers := map[string]Provider{"uax14": LineBreaker{}, "uax29": WordSegmenter{}}

	for name, p := range providers {
		for _, in := range inputs {
			t.Run(name+"/"+in, func(t *testing.T) {
				words := p.Segment(in)
				assert.Equal(t, in, strings.Join(words, ""))
				for _, w := range words {
					r, _ := utf8.DecodeRuneInString(w)
					assert.False(t, unicode.Is(unicode.Mn, r), "segment %q starts with a combining mark", w)
				}
			})
		}
	}
}

func TestBoundaries(t *testing.T) {
	assert.Equal(t, []int{6, 10, 15}, Boundaries(LineBreaker{}, "hello big world"))
	assert.Nil(t, Boundaries(nil, "hello"))

	b := Boundaries(WordSegmenter{}, "สวัสดี")
	require.NotEmpty(t, b)
	assert.Equal(t, 6, b[len(b)-1])
}

func TestLast(t *testing.T) {
	bounds := []int{3, 5, 9}

	assert.Equal(t, 5, Last(bounds, 3, 8))
	assert.Equal(t, 3, Last(bounds, 0, 3))
	assert.Equal(t, -1, Last(bounds, 0, 2))
	assert.Equal(t, -1, Last(bounds, 5, 8))
	assert.Equal(t, 9, Last(bounds, 0, 20))
	assert.Equal(t, -1, Last(nil, 0, 20))
}
