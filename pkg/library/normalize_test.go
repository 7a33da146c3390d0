package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Attention Is All You Need", "attention is all you need"},
		{"  Économie   politique: une   introduction. ", "economie politique une introduction"},
		{"Deep-Learning (2nd ed.)", "deep learning 2nd ed"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestNormalizeDOI(t *testing.T) {
	assert.Equal(t, "10.1000/xyz123", NormalizeDOI("https://doi.org/10.1000/XYZ123"))
	assert.Equal(t, "10.1000/xyz123", NormalizeDOI("doi:10.1000/xyz123."))
	assert.Equal(t, "", NormalizeDOI("not a doi"))
}

func TestNormalizeISBN(t *testing.T) {
	assert.Equal(t, "9780306406157", NormalizeISBN("978-0-306-40615-7"))
	assert.Equal(t, "9780306406157", NormalizeISBN("0-306-40615-2"))
	assert.Equal(t, "", NormalizeISBN("12345"))
	assert.Equal(t, "9780804429573", NormalizeISBN("080442957X"))
	assert.Equal(t, "", NormalizeISBN("0X0442957X"))
	assert.Equal(t, "", NormalizeISBN("X804429571"))
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(Reference{
		SourceID: "s1",
		Title:    "The Go Programming Language",
		Date:     "October 2015",
		Creators: []Creator{{LastName: "Donovan"}, {LastName: "Kernighan"}, {Name: "ACM Press"}},
	})

	assert.Equal(t, "the go programming language", q.Title)
	assert.Equal(t, "2015", q.Year)
	assert.Equal(t, []string{"donovan", "kernighan", "acmpress"}, q.Creators)
	assert.False(t, q.IsEmpty())
}
