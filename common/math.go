package common

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

func MaxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func Decimal(value float64) float64 {
	value, _ = strconv.ParseFloat(fmt.Sprintf("%.2f", value), 64)
	return value
}

func Md5CheckSum(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:16])
}
