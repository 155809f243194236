package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, New())
	}

	assert.True(t, sort.StringsAreSorted(ids))
}

func TestGeneratorUsesClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return at })

	got, err := Time(g.New())
	require.NoError(t, err)
	assert.True(t, at.Equal(got))
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}
