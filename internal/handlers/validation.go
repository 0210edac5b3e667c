package handlers

import "fmt"

// validateRoomId はルームIDのバリデーションを行います
// ルームIDが空の場合はエラーを返します
func validateRoomId(roomId string) error {
	if normalizeID(roomId) == "" {
		return fmt.Errorf("roomId required")
	}
	return nil
}

// validateRequired は必須フィールドが埋まっているかを確認します
func validateRequired(fields map[string]string) error {
	for name, v := range fields {
		if normalizeID(v) == "" {
			return fmt.Errorf("%s required", name)
		}
	}
	return nil
}
