// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"regexp"
	"strings"
)

var (
	trc20Address = regexp.MustCompile(`^T[A-Za-z1-9]{33}$`)
	txHash       = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
)

// MinPasswordLength задаёт минимальную длину пароля.
const MinPasswordLength = 8

// IsValidTRC20Address проверяет формат адреса кошелька USDT в сети TRC20.
func IsValidTRC20Address(address string) bool {
	return trc20Address.MatchString(address)
}

// IsValidTxHash проверяет формат хэша транзакции.
func IsValidTxHash(hash string) bool {
	return txHash.MatchString(hash)
}

// IsValidEmail проверяет, что строка является одиночным адресом электронной почты без отображаемого имени.
func IsValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// IsValidPassword проверяет минимальные требования к паролю.
func IsValidPassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// NormalizeEmail приводит адрес к каноничному виду для хранения и поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
