package signs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Hello - Wave hand", Describe("HELLO"))
	assert.Equal(t, "Hello - Wave hand", Describe("  hello "))
	assert.Equal(t, "Index finger pointing up", Describe("D"))
	assert.Equal(t, "No description available", Describe("NOT A SIGN"))
}

func TestCoreLabelsAreKnown(t *testing.T) {
	for _, label := range Core {
		assert.True(t, Known(label), label)
	}
	assert.False(t, Known("BANANA"))
}

func TestLabelsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, l := range Labels() {
		assert.False(t, seen[l], "duplicate label %s", l)
		seen[l] = true
	}
	assert.Contains(t, seen, "THANK YOU")
	assert.Contains(t, seen, "10")
}

func TestCategoriesReturnsCopy(t *testing.T) {
	cats := Categories()
	cats[0].Title = "changed"
	assert.Equal(t, "Alphabet Signs", Categories()[0].Title)
}
