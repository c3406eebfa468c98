package telegram

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback payloads of the inline keyboards.
const (
	CallbackStartQuiz = "start_quiz_cmd"
	CallbackSettings  = "settings"
	CallbackStopQuiz  = "stop_quiz"

	prefLanguagePrefix = "pref_lang_"
	prefCategoryPrefix = "pref_cat_"
	answerPrefix       = "a:"
)

// AnswerData encodes an answer button: a:{session}:{index}:{option}.
func AnswerData(sessionID string, index, option int) string {
	return fmt.Sprintf("%s%s:%d:%d", answerPrefix, sessionID, index, option)
}

// parseAnswer decodes AnswerData.
func parseAnswer(data string) (sessionID string, index, option int, ok bool) {
	if !strings.HasPrefix(data, answerPrefix) {
		return "", 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(data, answerPrefix), ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, false
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, false
	}
	option, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, false
	}
	return parts[0], index, option, true
}
