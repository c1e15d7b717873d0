// Package wallet 提供钱包签名恢复与推荐码生成
//
// 签名方案为以太坊 personal_sign: 对 "\x19Ethereum Signed Message:\n" +
// len(message) + message 做 Keccak256 摘要，再用 secp256k1 从签名恢复公钥。
package wallet

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const (
	personalMessagePrefix = "\x19Ethereum Signed Message:\n"

	// ReferralCodeLength 推荐码长度 (十六进制字符数)
	ReferralCodeLength = 8

	// RefParam / ReferrerParam 推荐链接的查询参数名
	RefParam      = "ref"
	ReferrerParam = "referrer"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress 校验 20 字节十六进制地址格式
func IsValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// NormalizeAddress 返回小写规范地址
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// HashPersonalMessage 计算 personal_sign 摘要
func HashPersonalMessage(message string) []byte {
	data := fmt.Sprintf("%s%d%s", personalMessagePrefix, len(message), message)
	return keccak256([]byte(data))
}

// RecoverAddress 从消息和签名恢复签名者地址 (小写)
//
// 签名为 65 字节 r||s||v，v 接受 0/1 或 27/28。
func RecoverAddress(message string, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length: %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)

	// 规范化 recovery id
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("invalid recovery id: %d", signature[64])
	}

	hash := HashPersonalMessage(message)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex()), nil
}

// RecoverAddressHex 从十六进制编码的签名恢复地址
func RecoverAddressHex(message, signatureHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	return RecoverAddress(message, sig)
}

// VerifySignature 验证签名是否出自 claimed 地址
//
// 任何内部失败都只返回 false，不向上传播。
func VerifySignature(message, signatureHex, claimed string) bool {
	recovered, err := RecoverAddressHex(message, signatureHex)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, claimed)
}

// ReferralCode 从钱包地址派生确定性推荐码
//
// 同一钱包永远得到同一推荐码: Keccak256(小写地址) 的前 8 个十六进制字符。
func ReferralCode(walletAddress string) string {
	hash := keccak256([]byte(NormalizeAddress(walletAddress)))
	return hex.EncodeToString(hash)[:ReferralCodeLength]
}

// ReferralLink 在目标链接上附加推荐参数
//
// 保留原有的查询参数、路径和 fragment。
func ReferralLink(targetURL, walletAddress string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}

	q := u.Query()
	q.Set(RefParam, ReferralCode(walletAddress))
	q.Set(ReferrerParam, NormalizeAddress(walletAddress))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// keccak256 计算 Keccak256 哈希
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
