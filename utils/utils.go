package utils

import (
	"crypto/rand"
	"math"
	"math/big"
	"strconv"
	"strings"
)

const SatoshiPerBitcoin = 1e8

func RoundTo(n float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*pow) / pow
}

// FormatBTC renders a satoshi amount as BTC without trailing zeros.
func FormatBTC(satoshi int64) string {
	s := strconv.FormatFloat(RoundTo(float64(satoshi)/SatoshiPerBitcoin, 8), 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomCode returns a cryptographically random alphanumeric string.
func RandomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
