package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"
)

// 去掉了易混淆的 0/O、1/I，方便店员肉眼核对
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	codePrefixMaxLen = 6
	codeSuffixLen    = 8 // 32^8 ≈ 1.1e12 种组合
)

// GenerateClaimCode 生成奖励领取码
// 格式：奖励名中的前6个字母（大写）+ "-" + 8位随机串，例如 OFFVOU-7KQ2MZ9D
//
// 随机串不保证全局唯一，调用方需结合唯一索引检查并在冲突时重新生成
func GenerateClaimCode(rewardName string) (string, error) {
	var prefix strings.Builder
	for _, r := range strings.ToUpper(rewardName) {
		if prefix.Len() >= codePrefixMaxLen {
			break
		}
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			prefix.WriteRune(r)
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteString("REWARD")
	}

	suffix, err := randomString(codeSuffixLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", prefix.String(), suffix), nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	// 字母表长度为 32，取低 5 位没有取模偏差
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)&31]
	}
	return string(buf), nil
}
