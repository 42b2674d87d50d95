package validator

import (
	"net/mail"
	"regexp"
	"strings"

	auth "storefront/internal/usecase/auth_usecase"
)

// パスワード最低文字数
const minPasswordLength = 12

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// よくある弱いパスワード
var weakPasswords = map[string]struct{}{
	"password":     {},
	"password123":  {},
	"123456789012": {},
	"qwertyuiop12": {},
	"letmein12345": {},
	"admin1234567": {},
}

type credentialsValidator struct{}

// Usecaseは interface を依存注入
func NewCredentialsValidator() auth.CredentialsValidator {
	return &credentialsValidator{}
}

// サインアップの入力を検証
func (v *credentialsValidator) ValidateRegister(email string, password string) error {
	if !isEmailLike(email) {
		return auth.ErrInvalidEmailFormat
	}
	if len(password) < minPasswordLength {
		return auth.ErrPasswordTooShort
	}
	if _, ok := weakPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
		return auth.ErrWeakPassword
	}
	return nil
}

// ログインの入力を検証
func (v *credentialsValidator) ValidateLogin(email string, password string) error {
	if password == "" || !isEmailLike(email) {
		return auth.ErrInvalidCredentials
	}
	return nil
}

// 簡易メール形式をチェック
func isEmailLike(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !emailPattern.MatchString(s) {
		return false
	}
	_, err := mail.ParseAddress(s)
	return err == nil
}
