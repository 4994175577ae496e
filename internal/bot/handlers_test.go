package bot

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerKeyboard(t *testing.T) {
	options := []string{"dog", "cat", "house"}
	kb := answerKeyboard(options)

	require.Len(t, kb.InlineKeyboard, 3)
	for i, row := range kb.InlineKeyboard {
		require.Len(t, row, 1)
		assert.Equal(t, options[i], row[0].Text)
		require.NotNil(t, row[0].CallbackData)
		assert.Equal(t, callbackAnswerPrefix+strconv.Itoa(i), *row[0].CallbackData)
	}
}
