package tariff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditSession(t *testing.T) {
	t.Run("close without submit discards a new country", func(t *testing.T) {
		s := newTestStore(t)

		sess := s.BeginEdit("CAN")
		_, err := sess.Update(LevelSection, SectionPath("1"), 10, KindCurrent)
		require.NoError(t, err)
		assert.Equal(t, 10.0, s.GetTariffValue(LevelSection, SectionPath("1"), "CAN", KindCurrent))

		assert.True(t, sess.Close())
		assert.False(t, s.IsInitialized("CAN"))
		assert.Equal(t, 0.0, s.GetTariffValue(LevelSection, SectionPath("1"), "CAN", KindCurrent))
	})

	t.Run("close without submit restores prior edits", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.UpdateTariff(LevelSection, SectionPath("1"), 10, "CAN", KindCurrent)
		require.NoError(t, err)

		sess := s.BeginEdit("can")
		_, err = sess.Update(LevelHS4, HS4Path("1", "01", "0101"), 30, KindCurrent)
		require.NoError(t, err)
		_, err = sess.Update(LevelSection, SectionPath("2"), 50, KindOriginal)
		require.NoError(t, err)
		sess.Close()

		assert.Equal(t, 10.0, s.GetTariffValue(LevelHS4, HS4Path("1", "01", "0101"), "CAN", KindCurrent))
		assert.False(t, s.IsDirectlySet(LevelHS4, HS4Path("1", "01", "0101"), "CAN", KindCurrent))
		assert.Equal(t, 1.0, s.GetTariffValue(LevelSection, SectionPath("2"), "CAN", KindOriginal))

		// The restored tree still propagates.
		_, err = s.UpdateTariff(LevelHS4, HS4Path("1", "01", "0101"), 20, "CAN", KindCurrent)
		require.NoError(t, err)
		assert.InDelta(t, 17.5, s.GetTariffValue(LevelChapter, ChapterPath("1", "01"), "CAN", KindCurrent), 1e-12)
	})

	t.Run("submitted edits survive close", func(t *testing.T) {
		s := newTestStore(t)

		sess := s.BeginEdit("CAN")
		_, err := sess.Update(LevelSection, SectionPath("1"), 10, KindCurrent)
		require.NoError(t, err)
		sess.Submit()

		assert.True(t, sess.Submitted())
		assert.False(t, sess.Close())
		assert.Equal(t, 10.0, s.GetTariffValue(LevelSection, SectionPath("1"), "CAN", KindCurrent))
	})

	t.Run("second close is a no-op", func(t *testing.T) {
		s := newTestStore(t)
		sess := s.BeginEdit("CAN")
		assert.True(t, sess.Close())
		assert.False(t, sess.Close())
	})
}
