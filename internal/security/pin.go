// Package security 封装口令哈希
// 账务引擎只通过 HashSecret / VerifySecret 接触口令，
// 明文 PIN 和密码不落库、不写日志
package security

import (
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashSecret 生成口令的 bcrypt 哈希
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret 校验明文口令是否匹配存储的哈希
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
