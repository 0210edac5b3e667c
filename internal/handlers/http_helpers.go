package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

// リクエストボディの上限（メッセージ本文1000文字に対して十分な余裕）
const maxBodyBytes = 1 << 20

// errorResponse はすべてのエラーレスポンスの共通形式です
type errorResponse struct {
	Message string `json:"message"`
}

// respondJSON はpayloadをJSONとして書き込みます（nilならステータスのみ）
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondError はエラーレスポンスを返します
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Message: msg})
}

// decodeJSON はリクエストボディをdstへデコードします
// 失敗した場合はエラーレスポンスを書き込んでfalseを返すので、
// 呼び出し側はそのままreturnしてください
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &maxBytesErr):
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
	default:
		respondError(w, http.StatusBadRequest, "bad request")
	}
	return false
}

// normalizeID は識別子の前後の空白を取り除きます
// パスパラメータとフォーム入力の両方に適用します
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
