package auth

import "golang.org/x/crypto/bcrypt"

// defaultBcryptCost はbcryptハッシュのデフォルトコスト
const defaultBcryptCost = 12

// PasswordHasher はパスワードのハッシュ化と照合を行います
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はデフォルトコストのPasswordHasherを作成します
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: defaultBcryptCost}
}

// Hash はパスワードのbcryptハッシュを生成します
func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify はパスワードがハッシュと一致するかを確認します
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
